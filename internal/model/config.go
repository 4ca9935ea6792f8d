package model

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Scan interval bounds in seconds.
const (
	DefaultScanInterval = 30
	MinScanInterval     = 10
	MaxScanInterval     = 3600
)

var validate = newValidator()

// RouterConfig is one configured MWAN3 router: credentials plus polling options.
type RouterConfig struct {
	Host            string `json:"host" validate:"required"`
	Username        string `json:"username" validate:"required"`
	Password        string `json:"password" validate:"required"`
	Name            string `json:"name"`
	ScanIntervalSec int    `json:"scan_interval" validate:"min=10,max=3600"`
	KeepLastGood    bool   `json:"keep_last_good"`
}

// ValidationError describes a user-supplied invalid value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Normalize trims user input and fills the default scan interval.
func (c RouterConfig) Normalize() RouterConfig {
	c.Host = strings.TrimSpace(c.Host)
	c.Username = strings.TrimSpace(c.Username)
	c.Name = strings.TrimSpace(c.Name)
	if c.ScanIntervalSec == 0 {
		c.ScanIntervalSec = DefaultScanInterval
	}
	return c
}

// Validate checks the configuration before it is accepted.
func (c RouterConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	first := fieldErrs[0]
	switch first.Tag() {
	case "required":
		return &ValidationError{Field: first.Field(), Reason: "is required"}
	case "min":
		return &ValidationError{Field: first.Field(), Reason: "must be at least " + first.Param() + " seconds"}
	case "max":
		return &ValidationError{Field: first.Field(), Reason: "must be at most " + first.Param() + " seconds"}
	default:
		return &ValidationError{Field: first.Field(), Reason: "failed " + first.Tag() + " check"}
	}
}

// DisplayName is the title shown for the router and used as sensor name prefix.
func (c RouterConfig) DisplayName() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return "MWAN3 " + strings.TrimSpace(c.Host)
}

func (c RouterConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSec) * time.Second
}

// BaseURL returns the LuCI origin. Plain hosts are reached over http like the
// router's default web UI; an explicit scheme is kept.
func (c RouterConfig) BaseURL() string {
	raw := strings.TrimSpace(c.Host)
	if raw == "" {
		return "http://"
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		host := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(c.Host), "http://"), "https://")
		return "http://" + strings.Trim(host, "/")
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + parsed.Host + strings.TrimSuffix(parsed.Path, "/")
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
