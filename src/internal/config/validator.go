package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidateConfig validates the entire configuration and returns all validation errors
func (c *Config) ValidateConfig() error {
	var validationErrors ValidationErrors

	sections := []struct {
		name  string
		value interface{}
		isNil bool
	}{
		{"general", c.General, c.General == nil},
		{"query_log", c.QueryLog, c.QueryLog == nil},
		{"proxy", c.Proxy, c.Proxy == nil},
		{"redirect", c.Redirect, c.Redirect == nil},
		{"api", c.API, c.API == nil},
	}

	for _, s := range sections {
		if s.isNil {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: s.name,
				Message:   fmt.Sprintf("configuration must contain '%s' section", s.name),
			})
			continue
		}
		if err := validate.Struct(s.value); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, s.name)...)
		}
	}

	if len(validationErrors) > 0 {
		return validationErrors
	}

	validationErrors = append(validationErrors, c.validateUpstreams()...)
	validationErrors = append(validationErrors, c.validateRedirect()...)

	if len(validationErrors) > 0 {
		return validationErrors
	}

	return nil
}

func (c *Config) validateUpstreams() ValidationErrors {
	var validationErrors ValidationErrors

	seen := make(map[string]bool)
	for i, upstream := range c.Proxy.Upstreams {
		if seen[upstream] {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: fmt.Sprintf("proxy.upstreams.%d", i),
				Message:   fmt.Sprintf("duplicate upstream: %s", upstream),
			})
		}
		seen[upstream] = true
	}

	return validationErrors
}

func (c *Config) validateRedirect() ValidationErrors {
	var validationErrors ValidationErrors

	if !c.Redirect.Enabled {
		return nil
	}

	// Redirected traffic must reach the proxy.
	if c.Redirect.Port != c.Proxy.ListenPort && c.Redirect.IPv4Address == c.Proxy.ListenAddr {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "redirect.port",
			Message:   fmt.Sprintf("must match proxy.listen_port (%d) when redirecting to the proxy address", c.Proxy.ListenPort),
		})
	}

	if c.Redirect.Port == 53 {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "redirect.port",
			Message:   "must not be 53, redirected traffic would loop",
		})
	}

	// The DNAT rule matches every outgoing packet to port 53, including the
	// proxy's own upstream queries.
	for i, upstream := range c.Proxy.Upstreams {
		if port, ok := upstreamPort(upstream); ok && port == "53" {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: fmt.Sprintf("proxy.upstreams.%d", i),
				Message:   fmt.Sprintf("upstream %s uses port 53 and would be redirected back to the proxy", upstream),
			})
		}
	}

	return validationErrors
}

func upstreamPort(upstream string) (string, bool) {
	if i := strings.Index(upstream, "://"); i >= 0 {
		upstream = upstream[i+3:]
	}
	_, port, err := net.SplitHostPort(upstream)
	if err != nil {
		return "", false
	}
	return port, true
}

// convertValidatorErrors converts go-playground/validator errors to our ValidationError format
func convertValidatorErrors(err error, fieldPrefix string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			fieldPath := fieldPrefix
			if e.Field() != "" {
				// Field() returns the TOML name because of RegisterTagNameFunc.
				if fieldPrefix != "" {
					fieldPath = fieldPrefix + "." + e.Field()
				} else {
					fieldPath = e.Field()
				}
			}

			validationErrors = append(validationErrors, ValidationError{
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}
