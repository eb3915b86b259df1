package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidationError represents a single validation issue with the settings.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks settings for semantic errors. It returns every problem
// found (empty if valid).
func Validate(s *Settings) []ValidationError {
	var errs []ValidationError

	if s.Root == "" {
		errs = append(errs, ValidationError{Field: "root", Message: "is required"})
	}
	if s.Java == "" {
		errs = append(errs, ValidationError{Field: "java", Message: "is required"})
	}
	if s.ManifestURL != "" {
		validateURL("manifest_url", s.ManifestURL, &errs)
	}
	for i, repo := range s.Repositories {
		validateURL(fmt.Sprintf("repositories[%d]", i), repo, &errs)
	}

	if s.Download.Retries < 0 {
		errs = append(errs, ValidationError{Field: "download.retries", Message: "must not be negative"})
	}
	for _, d := range []struct {
		field string
		value string
	}{
		{"download.timeout", s.Download.Timeout},
		{"download.backoff", s.Download.Backoff},
		{"exec.timeout", s.Exec.Timeout},
	} {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			errs = append(errs, ValidationError{Field: d.field, Message: fmt.Sprintf("invalid duration %q", d.value)})
		} else if v < 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: "must not be negative"})
		}
	}

	return errs
}

func validateURL(field, raw string, errs *[]ValidationError) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%q is not an http(s) URL", raw),
		})
	}
}
