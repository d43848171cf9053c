package service

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/repo"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func Filter[T any](items []T, fn func(T) bool) []T {
	var result []T
	for _, v := range items {
		if fn(v) {
			result = append(result, v)
		}
	}
	return result
}

// parseObjectID parses hex, reporting a validation error with code on failure.
func parseObjectID(hex, code, field string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(hex))
	if err != nil {
		return primitive.NilObjectID, common.Validation(code, "invalid "+field)
	}
	return id, nil
}

// notFoundOr maps repo.ErrNotFound to a NotFound error and anything else to Internal.
func notFoundOr(err error, code, message string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return common.NotFound(code, message)
	}
	return common.Internal(err)
}

func placeName(city, country string) string {
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	case country != "":
		return country
	default:
		return "your destination"
	}
}
