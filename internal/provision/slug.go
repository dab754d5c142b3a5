package provision

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	markdownNoise  = regexp.MustCompile(`[#*\-\s]`)
	nonAlphanum    = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

const fallbackSlug = "athena-project"

// GenerateProjectID derives a repository-safe project id from the
// overview text: a slugified title fragment plus a 5-digit
// disambiguator. The disambiguator mixes timestamp and random digits
// and is not guaranteed collision-free; a collision surfaces as a 422
// from repo creation and the caller retries with new idea text.
func GenerateProjectID(overview string) string {
	title := fallbackSlug
	for _, line := range strings.Split(overview, "\n") {
		cleaned := strings.TrimSpace(markdownNoise.ReplaceAllString(line, ""))
		if len(cleaned) > 3 && len(cleaned) < 50 {
			// The qualifying filter also strips whitespace, so the
			// fragment carries no interior hyphens after slugging.
			title = cleaned
			break
		}
	}

	slug := strings.ToLower(title)
	slug = nonAlphanum.ReplaceAllString(slug, "")
	slug = whitespaceRuns.ReplaceAllString(strings.TrimSpace(slug), "-")
	if len(slug) > 20 {
		slug = slug[:20]
	}
	if slug == "" {
		slug = fallbackSlug
	}

	return slug + "-" + uniqueNumber()
}

// uniqueNumber builds the 5-digit disambiguator from the millisecond
// timestamp's tail and three random digits.
func uniqueNumber() string {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	random := fmt.Sprintf("%03d", rand.Intn(1000))
	mixed, _ := strconv.Atoi(timestamp[len(timestamp)-4:] + random)
	return fmt.Sprintf("%05d", mixed%100000)
}

// TitleFromID recovers the human-readable title from a project id:
// the leading slug fragment with separators turned into spaces.
func TitleFromID(id string) string {
	head, _, _ := strings.Cut(id, "-")
	return strings.ReplaceAll(head, "_", " ")
}
