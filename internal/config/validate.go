package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate rejects configurations the daemon cannot run with. It returns all
// problems joined so users can fix a bad file in one pass.
func (c *Config) Validate() error {
	var problems []error

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, errors.New("paths.data_dir must be set"))
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, errors.New("paths.log_dir must be set"))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level))
	}
	if c.Validation.AmountTolerancePct < 0 {
		problems = append(problems, errors.New("validation.amount_tolerance_pct must not be negative"))
	}
	if c.POMatch.PriceTolerancePct < 0 {
		problems = append(problems, errors.New("po_match.price_tolerance_pct must not be negative"))
	}
	if c.POMatch.QtyTolerancePct < 0 {
		problems = append(problems, errors.New("po_match.qty_tolerance_pct must not be negative"))
	}
	if c.Coding.MinConfidence < 0 || c.Coding.MinConfidence > 1 {
		problems = append(problems, errors.New("coding.min_confidence must be between 0 and 1"))
	}
	if c.Risk.AutoApproveLimit < 0 {
		problems = append(problems, errors.New("risk.auto_approve_limit must not be negative"))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Join(problems...)
}
