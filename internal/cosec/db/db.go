package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Repository struct {
	db *gorm.DB
}

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func NewRepository(cfg *Config) (*Repository, error) {
	return Open(postgres.Open(cfg.DSN()))
}

// Open connects through any GORM dialector and migrates the schema.
func Open(dialector gorm.Dialector) (*Repository, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Company{},
		&models.Director{},
		&models.Shareholder{},
		&models.ContactPerson{},
		&models.ComplianceInformation{},
		&models.DocumentTemplate{},
		&models.EmailTemplate{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e.ErrNotFound
	}
	return err
}

func (r *Repository) CreateCompany(ctx context.Context, company *models.Company) error {
	result := r.db.WithContext(ctx).Omit("Directors", "Shareholders", "ContactPerson", "Compliance").Create(company)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return e.ErrDuplicateRegistration
		}
		return result.Error
	}
	return nil
}

// GetCompany loads a company with every record it owns. Directors and
// shareholders come back in the order they were added.
func (r *Repository) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	result := r.withOwned(r.db.WithContext(ctx)).First(&company, "id = ?", id)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &company, nil
}

func (r *Repository) withOwned(tx *gorm.DB) *gorm.DB {
	byAge := func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, full_name ASC") }
	return tx.
		Preload("Directors", byAge).
		Preload("Shareholders", byAge).
		Preload("ContactPerson").
		Preload("Compliance")
}

func (r *Repository) ListCompanies(ctx context.Context, filter models.ListFilter) ([]models.Company, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	q := r.db.WithContext(ctx).Order("name ASC").Limit(limit).Offset(filter.Offset)
	if filter.Branch != "" {
		q = q.Where("branch = ?", filter.Branch)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		// Both columns are stored uppercase.
		like := "%" + strings.ToUpper(term) + "%"
		q = q.Where("(name LIKE ? OR registration_number LIKE ?)", like, like)
	}
	var companies []models.Company
	if err := q.Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

// CompaniesForExport returns every company with its compliance information,
// ordered by name.
func (r *Repository) CompaniesForExport(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	if err := r.db.WithContext(ctx).Preload("Compliance").Order("name ASC").Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

// GetCompanyByRegistration loads a company and its compliance information by
// its normalised registration number.
func (r *Repository) GetCompanyByRegistration(ctx context.Context, registration string) (*models.Company, error) {
	var company models.Company
	result := r.db.WithContext(ctx).Preload("Compliance").First(&company, "registration_number = ?", registration)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &company, nil
}

// CompaniesForReminders returns every company with its directors and contact
// person, which is all the reminder run needs.
func (r *Repository) CompaniesForReminders(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	err := r.db.WithContext(ctx).
		Preload("Directors", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, full_name ASC") }).
		Preload("ContactPerson").
		Order("name ASC").
		Find(&companies).Error
	if err != nil {
		return nil, err
	}
	return companies, nil
}

func (r *Repository) UpdateCompany(ctx context.Context, update *models.CompanyUpdate) error {
	cols := update.Columns()
	if len(cols) == 0 {
		return notFound(r.db.WithContext(ctx).Select("id").First(&models.Company{}, "id = ?", update.ID).Error)
	}
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("id = ?", update.ID).
		Updates(cols)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// DeleteCompany removes the company and every record it owns in one transaction.
func (r *Repository) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, owned := range []interface{}{
			&models.Director{},
			&models.Shareholder{},
			&models.ContactPerson{},
			&models.ComplianceInformation{},
		} {
			if err := tx.Where("company_id = ?", id).Delete(owned).Error; err != nil {
				return err
			}
		}
		result := tx.Delete(&models.Company{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return e.ErrNotFound
		}
		return nil
	})
}

func (r *Repository) CompanyExistsByRegistration(ctx context.Context, registration string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("registration_number = ?", registration).
		Limit(1).
		Count(&count)
	return count > 0, result.Error
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
