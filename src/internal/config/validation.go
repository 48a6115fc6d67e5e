package config

import (
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maksimkurb/keen-dns/src/internal/utils"
)

// getValidationMessage returns a human-readable message for a validation error
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "ipv4":
		return "must be a valid IPv4 address"
	case "ip_or_empty":
		return "must be a valid IP address (IPv6 must be in square brackets, e.g., [::1]) or empty"
	case "ipv6_or_auto":
		return "must be an IPv6 address, \"auto\" or empty"
	case "hostport_or_empty":
		return "must be in format 'host:port' or empty"
	case "upstream_url":
		return "must be a valid upstream URL (udp://ip:port or tcp://ip:port)"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	FieldPath string // Dot-notation field path (e.g., "proxy.listen_port")
	Message   string // Human-readable error message
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("ip_or_empty", validateIPOrEmpty); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("ipv6_or_auto", validateIPv6OrAuto); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("hostport_or_empty", validateHostPortOrEmpty); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("upstream_url", validateUpstreamURLTag); err != nil {
		panic(err)
	}

	// Report field names as they appear in the TOML file.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Custom validator: IP address or empty (IPv6 must be in square brackets)
func validateIPOrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return validateIPAddress(value)
}

// validateIPAddress validates IP address with IPv6 in square brackets
func validateIPAddress(value string) bool {
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		ip := net.ParseIP(strings.Trim(value, "[]"))
		return ip != nil && ip.To4() == nil
	}

	// Without brackets, must be IPv4
	ip := net.ParseIP(value)
	return ip != nil && ip.To4() != nil
}

// Custom validator: bare IPv6 address, "auto" or empty
func validateIPv6OrAuto(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" || value == IPv6Auto {
		return true
	}
	ip := net.ParseIP(value)
	return ip != nil && ip.To4() == nil
}

// Custom validator: host:port format or empty
func validateHostPortOrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, port, err := net.SplitHostPort(value)
	return err == nil && utils.IsValidPort(port)
}

// Custom validator: upstream URL format
func validateUpstreamURLTag(fl validator.FieldLevel) bool {
	return ValidateUpstreamURL(fl.Field().String()) == nil
}

// ValidateUpstreamURL validates a DNS upstream URL.
func ValidateUpstreamURL(upstream string) error {
	if upstream == "" {
		return fmt.Errorf("upstream URL cannot be empty")
	}

	for _, scheme := range []string{"udp://", "tcp://"} {
		if strings.HasPrefix(upstream, scheme) {
			addr := strings.TrimPrefix(upstream, scheme)
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				return fmt.Errorf("invalid upstream format (expected %sip:port)", scheme)
			}
			if !utils.IsValidPort(port) {
				return fmt.Errorf("invalid upstream port %q", port)
			}
			return nil
		}
	}

	return fmt.Errorf("unsupported upstream scheme (supported: udp://, tcp://)")
}
