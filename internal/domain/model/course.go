package model

import (
	"fmt"

	"course-access-bot/internal/domain"
)

// Course is one entry of the static catalogue.
type Course struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Price       int    `yaml:"price"`
	Description string `yaml:"description"`
}

// Catalogue is the immutable, ordered course table.
type Catalogue struct {
	courses []Course
	byKey   map[string]Course
}

func NewCatalogue(courses []Course) (*Catalogue, error) {
	if len(courses) == 0 {
		return nil, fmt.Errorf("%w: empty course catalogue", domain.ErrValidation)
	}
	c := &Catalogue{
		courses: make([]Course, 0, len(courses)),
		byKey:   make(map[string]Course, len(courses)),
	}
	for _, course := range courses {
		if course.Key == "" || course.Name == "" {
			return nil, fmt.Errorf("%w: course key and name are required", domain.ErrValidation)
		}
		if course.Price < 0 {
			return nil, fmt.Errorf("%w: negative price for %s", domain.ErrValidation, course.Key)
		}
		if _, dup := c.byKey[course.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate course key %s", domain.ErrValidation, course.Key)
		}
		c.courses = append(c.courses, course)
		c.byKey[course.Key] = course
	}
	return c, nil
}

func (c *Catalogue) Lookup(key string) (Course, bool) {
	course, ok := c.byKey[key]
	return course, ok
}

// All returns the courses in display order.
func (c *Catalogue) All() []Course {
	out := make([]Course, len(c.courses))
	copy(out, c.courses)
	return out
}
