package repository

import (
	"fmt"
	"time"

	"armory/internal/model"
)

// DefaultCategories are the classes every fresh database starts with.
var DefaultCategories = []model.Category{
	{Name: "car", Description: "Four wheeler", IsActive: true},
	{Name: "bicycle", Description: "Two wheeler", IsActive: true},
	{Name: "bottle", IsActive: true},
	{Name: "pencil", IsActive: true},
	{Name: "phone", IsActive: true},
}

// DefaultAttributes builds the placeholder attribute document of a category.
func DefaultAttributes(categoryID int64) map[string]any {
	return map[string]any{
		"material_code":  fmt.Sprintf("M00%d", categoryID),
		"nomenclature":   fmt.Sprintf("ABC0%d", categoryID),
		"section":        fmt.Sprintf("Z%d", categoryID),
		"main_equipment": fmt.Sprintf("ME0%d", categoryID),
	}
}

// SeedCategories inserts the missing default categories and gives every
// category without attributes the default document. It returns how many
// categories were added.
func SeedCategories(repo CategoryRepository, now time.Time) (int, error) {
	existing, err := repo.GetAll()
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[c.Name] = true
	}

	added := 0
	for _, c := range DefaultCategories {
		if known[c.Name] {
			continue
		}
		c.AddedDate = now
		if _, err := repo.InsertCategory(&c); err != nil {
			return added, err
		}
		added++
	}

	all, err := repo.GetAll()
	if err != nil {
		return added, err
	}
	for _, c := range all {
		attributes, err := repo.AttributesByName(c.Name)
		if err != nil {
			return added, err
		}
		if attributes != nil {
			continue
		}
		if err := repo.InsertAttributes(c.ID, DefaultAttributes(c.ID)); err != nil {
			return added, err
		}
	}

	return added, nil
}
