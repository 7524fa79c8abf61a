// Command seed loads a minimal working dataset into the database: an
// administrator account, an ACTIVO period with three lapses, and a couple
// of sections with students. Intended for local development only.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/colegio-adp-api/internal/models"
	"github.com/noah-isme/colegio-adp-api/pkg/config"
	"github.com/noah-isme/colegio-adp-api/pkg/database"
)

func main() {
	var (
		adminEmail    string
		adminPassword string
		studentCount  int
	)
	flag.StringVar(&adminEmail, "admin-email", "admin@colegio-adp.local", "Administrator email")
	flag.StringVar(&adminPassword, "admin-password", "cambiarme123", "Administrator password")
	flag.IntVar(&studentCount, "students", 40, "Number of demo students")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx := context.Background()
	now := time.Now().UTC()

	if err := seedAdmin(ctx, db, adminEmail, adminPassword, now); err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}

	periodID, err := seedPeriod(ctx, db, now)
	if err != nil {
		log.Fatalf("failed to seed period: %v", err)
	}

	sectionIDs, err := seedSections(ctx, db, now)
	if err != nil {
		log.Fatalf("failed to seed sections: %v", err)
	}

	if err := seedStudents(ctx, db, periodID, sectionIDs, studentCount, now); err != nil {
		log.Fatalf("failed to seed students: %v", err)
	}

	log.Printf("seeded admin %s, period, %d sections and %d students", adminEmail, len(sectionIDs), studentCount)
}

func seedAdmin(ctx context.Context, db *sqlx.DB, email, password string, now time.Time) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
		ON CONFLICT (email) DO NOTHING`,
		uuid.NewString(), email, string(hash), "Administrador", models.RoleAdmin, now)
	return err
}

func seedPeriod(ctx context.Context, db *sqlx.DB, now time.Time) (string, error) {
	label := fmt.Sprintf("%d-%d", now.Year(), now.Year()+1)
	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `
		INSERT INTO periods (id, label, status, created_at, updated_at)
		SELECT $1, $2, $3, $4, $4
		WHERE NOT EXISTS (SELECT 1 FROM periods WHERE status = $3)`,
		id, label, models.PeriodStatusActivo, now)
	if err != nil {
		return "", err
	}

	var periodID string
	if err := db.GetContext(ctx, &periodID, `SELECT id FROM periods WHERE status = $1`, models.PeriodStatusActivo); err != nil {
		return "", err
	}

	labels := []string{"1er Lapso", "2do Lapso", "3er Lapso"}
	for i, lapseLabel := range labels {
		status := models.LapseStatusBloqueado
		if i == 0 {
			status = models.LapseStatusActivo
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO lapses (id, period_id, label, status, created_at, updated_at)
			SELECT $1, $2, $3, $4, $5, $5
			WHERE NOT EXISTS (SELECT 1 FROM lapses WHERE period_id = $2 AND label = $3)`,
			uuid.NewString(), periodID, lapseLabel, status, now); err != nil {
			return "", err
		}
	}
	return periodID, nil
}

func seedSections(ctx context.Context, db *sqlx.DB, now time.Time) ([]string, error) {
	specs := []struct {
		grade  string
		letter string
		shift  models.SectionShift
	}{
		{"1er Grado", "A", models.ShiftManana},
		{"1er Grado", "B", models.ShiftTarde},
		{"2do Grado", "A", models.ShiftManana},
	}

	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		id := uuid.NewString()
		if _, err := db.ExecContext(ctx, `
			INSERT INTO sections (id, grade_label, letter, shift, capacity, created_at, updated_at)
			SELECT $1, $2, $3, $4, 30, $5, $5
			WHERE NOT EXISTS (SELECT 1 FROM sections WHERE grade_label = $2 AND letter = $3 AND shift = $4)`,
			id, spec.grade, spec.letter, spec.shift, now); err != nil {
			return nil, err
		}
		var existing string
		if err := db.GetContext(ctx, &existing, `
			SELECT id FROM sections WHERE grade_label = $1 AND letter = $2 AND shift = $3`,
			spec.grade, spec.letter, spec.shift); err != nil {
			return nil, err
		}
		ids = append(ids, existing)
	}
	return ids, nil
}

func seedStudents(ctx context.Context, db *sqlx.DB, periodID string, sectionIDs []string, count int, now time.Time) error {
	for i := 1; i <= count; i++ {
		studentID := uuid.NewString()
		cedula := fmt.Sprintf("%08d", 30000000+i)
		sectionID := sectionIDs[i%len(sectionIDs)]

		res, err := db.ExecContext(ctx, `
			INSERT INTO students (id, cedula, first_name, last_name, birth_date, estado, section_id, created_at, updated_at)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8, $8
			WHERE NOT EXISTS (SELECT 1 FROM students WHERE cedula = $2)`,
			studentID, cedula, fmt.Sprintf("Estudiante%d", i), fmt.Sprintf("Demo%d", i),
			now.AddDate(-7, 0, -i), models.StudentStatusInscrito, sectionID, now)
		if err != nil {
			return err
		}
		inserted, err := res.RowsAffected()
		if err != nil || inserted == 0 {
			continue
		}

		if _, err := db.ExecContext(ctx, `
			INSERT INTO enrollments (id, student_id, section_id, period_id, status, enrolled_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6, $6)`,
			uuid.NewString(), studentID, sectionID, periodID, models.EnrollmentStatusInscrito, now); err != nil {
			return err
		}
	}
	return nil
}
