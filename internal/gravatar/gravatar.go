package gravatar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jon4hz/chartwise/internal/config"
)

const baseURL = "https://www.gravatar.com/avatar/"

// Resolver builds avatar URLs for user emails.
// A nil or disabled Resolver returns empty URLs.
type Resolver struct {
	query string
}

// New validates the Gravatar configuration and returns a Resolver.
func New(cfg *config.GravatarConfig) (*Resolver, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.DefaultImage != "" && !IsValidDefaultImage(cfg.DefaultImage) {
		return nil, fmt.Errorf("invalid gravatar default image %q", cfg.DefaultImage)
	}
	if cfg.Rating != "" && !IsValidRating(cfg.Rating) {
		return nil, fmt.Errorf("invalid gravatar rating %q", cfg.Rating)
	}
	if cfg.Size != 0 && !IsValidSize(cfg.Size) {
		return nil, fmt.Errorf("invalid gravatar size %d", cfg.Size)
	}

	params := url.Values{}
	if cfg.DefaultImage != "" {
		params.Add("d", cfg.DefaultImage)
	}
	if cfg.Rating != "" {
		params.Add("r", cfg.Rating)
	}
	if cfg.Size > 0 {
		params.Add("s", strconv.Itoa(cfg.Size))
	}
	return &Resolver{query: params.Encode()}, nil
}

// URL returns the avatar URL for the email, or "" if the resolver is disabled or the email is empty.
func (r *Resolver) URL(email string) string {
	if r == nil {
		return ""
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(email))
	u := baseURL + hex.EncodeToString(hash[:])
	if r.query != "" {
		u += "?" + r.query
	}
	return u
}

// IsValidDefaultImage checks if the provided default image value is valid for Gravatar.
func IsValidDefaultImage(defaultImage string) bool {
	switch defaultImage {
	case "404", "mp", "identicon", "monsterid", "wavatar", "retro", "robohash", "blank":
		return true
	}
	return false
}

// IsValidRating checks if the provided rating value is valid for Gravatar.
func IsValidRating(rating string) bool {
	switch rating {
	case "g", "pg", "r", "x":
		return true
	}
	return false
}

// IsValidSize checks if the provided size value is valid for Gravatar (1-2048 pixels).
func IsValidSize(size int) bool {
	return size >= 1 && size <= 2048
}
