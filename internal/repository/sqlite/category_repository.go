package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"armory/internal/model"
)

// CategoryRepository implements repository.CategoryRepository for SQLite.
type CategoryRepository struct {
	db *DB
}

// NewCategoryRepository creates a new SQLite category repository.
func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// InsertCategory adds a category and returns its id.
func (r *CategoryRepository) InsertCategory(c *model.Category) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO categories (name, description, added_date, is_active)
		VALUES (?, ?, ?, ?)
	`, c.Name, c.Description, c.AddedDate, c.IsActive)
	if err != nil {
		return 0, fmt.Errorf("failed to insert category: %w", err)
	}

	return result.LastInsertId()
}

// GetAll returns every category ordered by id.
func (r *CategoryRepository) GetAll() ([]model.Category, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT id, name, description, added_date, is_active FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var (
			c         model.Category
			addedDate sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &addedDate, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.AddedDate = addedDate.Time
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

// InsertAttributes stores an attribute document for a category.
func (r *CategoryRepository) InsertAttributes(categoryID int64, data map[string]any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`
		INSERT INTO category_attributes (category_id, data) VALUES (?, ?)
	`, categoryID, string(encoded)); err != nil {
		return fmt.Errorf("failed to insert category attributes: %w", err)
	}
	return nil
}

// AttributesByName returns the attributes of the named category, or nil if it has none.
func (r *CategoryRepository) AttributesByName(name string) (map[string]any, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var data string
	err := r.db.Conn().QueryRow(`
		SELECT ca.data FROM categories c
		JOIN category_attributes ca ON c.id = ca.category_id
		WHERE c.name = ?
		ORDER BY ca.id LIMIT 1
	`, name).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category attributes: %w", err)
	}

	var attributes map[string]any
	if err := json.Unmarshal([]byte(data), &attributes); err != nil {
		return nil, fmt.Errorf("failed to decode category attributes: %w", err)
	}
	return attributes, nil
}
