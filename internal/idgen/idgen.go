// Package idgen generates knot identifiers and the repo-scoped slugs they
// are prefixed with, per spec.md's `<slug>-[0-9a-f]{4}` identity contract.
package idgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxAttempts bounds the number of short-hex collisions before falling back
// to a longer suffix.
const MaxAttempts = 64

var nonSlugChar = regexp.MustCompile(`[^a-z0-9-]+`)

// GenerateKnotID returns a fresh knot id of the form "<slug>-<hex4>",
// retrying with a new random seed on collision (as reported by exists) up
// to MaxAttempts times before falling back to an 8-hex-character suffix.
func GenerateKnotID(slug string, exists func(id string) bool) string {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		short := shortHex(4)
		candidate := fmt.Sprintf("%s-%s", slug, short)
		if !exists(candidate) {
			return candidate
		}
	}
	candidate := fmt.Sprintf("%s-%s", slug, shortHex(8))
	return candidate
}

func shortHex(length int) string {
	seed, err := uuid.NewV7()
	if err != nil {
		seed = uuid.New()
	}
	sum := sha256.Sum256(seed[:])
	full := hex.EncodeToString(sum[:])
	if length > len(full) {
		length = len(full)
	}
	return full[:length]
}

// DisplayID returns the short suffix of a knot id, the part after the last
// hyphen — what a human sees when a tool abbreviates a full id.
func DisplayID(id string) string {
	if idx := strings.LastIndex(id, "-"); idx >= 0 && idx+1 < len(id) {
		return id[idx+1:]
	}
	return id
}

// RepoSlug derives the repo-scoped prefix for knot ids: the normalized
// basename of the origin remote's URL, or the normalized directory
// basename if there is no remote, or "repo" if neither yields anything
// usable.
func RepoSlug(repoRoot string) string {
	if remote := originRemoteName(repoRoot); remote != "" {
		if normalized := normalizeSlug(remote); normalized != "" {
			return normalized
		}
	}
	if base := filepath.Base(repoRoot); base != "" {
		if normalized := normalizeSlug(base); normalized != "" {
			return normalized
		}
	}
	return "repo"
}

func originRemoteName(repoRoot string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "remote", "get-url", "origin")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	url := strings.TrimSpace(string(out))
	url = strings.TrimSuffix(url, ".git")
	url = strings.TrimSuffix(url, "/")
	if idx := strings.LastIndexAny(url, "/:"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}

func normalizeSlug(value string) string {
	lower := strings.ToLower(value)
	normalized := nonSlugChar.ReplaceAllString(lower, "-")
	normalized = strings.Trim(normalized, "-")
	return normalized
}
