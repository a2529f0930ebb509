package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/veracart/veracart-backend/pkg/errors"
	"github.com/veracart/veracart-backend/pkg/logger"
)

// ReviewContent is the authored part of a review. Everything the storefront
// renders for a review body lives here; state the service derives (tier, refs,
// timestamps) deliberately does not, so the same authored content always
// addresses the same record.
type ReviewContent struct {
	ProductID string   `json:"productId"`
	BuyerID   string   `json:"buyerId"`
	Rating    int      `json:"rating"`
	Title     string   `json:"title,omitempty"`
	Comment   string   `json:"comment"`
	ImageRefs []string `json:"imageRefs,omitempty"`
}

// Service is the content-addressable store for review bodies. Put is
// idempotent: storing the same content twice yields the same id and does not
// grow storage.
type Service interface {
	Put(ctx context.Context, content ReviewContent) (string, error)
	Get(ctx context.Context, contentID string) (*ReviewContent, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("contentstore repository is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Canonicalize renders content to its canonical byte form. Struct field order
// is fixed, so equal content always serializes identically; the id is the
// SHA-256 of these bytes.
func Canonicalize(content ReviewContent) ([]byte, string, error) {
	if content.ImageRefs != nil && len(content.ImageRefs) == 0 {
		content.ImageRefs = nil
	}
	body, err := json.Marshal(content)
	if err != nil {
		return nil, "", fmt.Errorf("canonicalizing review content: %w", err)
	}
	sum := sha256.Sum256(body)
	return body, hex.EncodeToString(sum[:]), nil
}

func (s *service) Put(ctx context.Context, content ReviewContent) (string, error) {
	body, contentID, err := Canonicalize(content)
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "failed to canonicalize review content")
	}

	if err := s.repo.Save(ctx, contentID, body); err != nil {
		return "", errors.Wrap(errors.CodeInternal, err, "failed to persist review content")
	}

	return contentID, nil
}

func (s *service) Get(ctx context.Context, contentID string) (*ReviewContent, error) {
	body, err := s.repo.Load(ctx, contentID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "failed to load review content")
	}

	var content ReviewContent
	if err := json.Unmarshal(body, &content); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "stored review content is corrupt")
	}
	return &content, nil
}
