package suggest

import "time"

// RegisterDefaultProviders attaches a representative, non-exhaustive
// set of canned advice for connection, permission, configuration,
// dependency, and data errors.
func RegisterDefaultProviders(r *Registry) {
	r.RegisterProvider(connectionProvider)
	r.RegisterProvider(permissionProvider)
	r.RegisterProvider(configurationProvider)
	r.RegisterProvider(dependencyProvider)
	r.RegisterProvider(dataProvider)
}

func connectionProvider(err error) ([]ActionableSuggestion, error) {
	s := ActionableSuggestion{
		Message:  "The operation could not reach a remote endpoint.",
		Severity: SeverityHigh,
		Category: CategoryConnection,
		Steps: []string{
			"Verify the target host and port are correct and reachable",
			"Check for firewall rules blocking the connection",
			"Confirm the remote service is running and accepting connections",
			"Retry with a longer timeout if the network is known to be slow",
		},
		EstimatedFixTime:  5 * time.Minute,
		AppliesToPatterns: []string{"connection refused", "connection reset", "no route to host", "dial tcp"},
	}
	if s.Matches(err) {
		return []ActionableSuggestion{s}, nil
	}
	return nil, nil
}

func permissionProvider(err error) ([]ActionableSuggestion, error) {
	s := ActionableSuggestion{
		Message:  "The operation was denied by the underlying filesystem or service.",
		Severity: SeverityHigh,
		Category: CategoryPermission,
		Steps: []string{
			"Check file/directory ownership and mode bits",
			"Confirm the running user has the required role or scope",
			"Re-run with elevated privileges only if that is an expected requirement",
		},
		EstimatedFixTime:  2 * time.Minute,
		AppliesToPatterns: []string{"permission denied", "access is denied", "forbidden", "unauthorized"},
	}
	if s.Matches(err) {
		return []ActionableSuggestion{s}, nil
	}
	return nil, nil
}

func configurationProvider(err error) ([]ActionableSuggestion, error) {
	s := ActionableSuggestion{
		Message:  "A configuration value appears to be missing or malformed.",
		Severity: SeverityMedium,
		Category: CategoryConfiguration,
		Steps: []string{
			"Check the relevant environment variables and config file entries",
			"Compare against the documented defaults",
			"Validate the configuration before startup rather than at first use",
		},
		EstimatedFixTime:  3 * time.Minute,
		AppliesToPatterns: []string{"invalid config", "missing required", "malformed", "not configured"},
	}
	if s.Matches(err) {
		return []ActionableSuggestion{s}, nil
	}
	return nil, nil
}

func dependencyProvider(err error) ([]ActionableSuggestion, error) {
	s := ActionableSuggestion{
		Message:  "A required dependency appears to be unavailable or incompatible.",
		Severity: SeverityMedium,
		Category: CategoryDependency,
		Steps: []string{
			"Confirm the dependency is installed at the expected version",
			"Check for a recent upgrade that changed its interface",
			"Pin the dependency version if compatibility is fragile",
		},
		EstimatedFixTime:  10 * time.Minute,
		AppliesToPatterns: []string{"not found", "no such file or directory", "unsupported version", "incompatible"},
	}
	if s.Matches(err) {
		return []ActionableSuggestion{s}, nil
	}
	return nil, nil
}

func dataProvider(err error) ([]ActionableSuggestion, error) {
	s := ActionableSuggestion{
		Message:  "The data being processed did not match the expected shape or encoding.",
		Severity: SeverityLow,
		Category: CategoryData,
		Steps: []string{
			"Inspect the raw input for unexpected encoding or truncation",
			"Validate against the expected schema before processing",
			"Check for a version mismatch between producer and consumer",
		},
		EstimatedFixTime:  5 * time.Minute,
		AppliesToPatterns: []string{"invalid character", "unexpected end of", "unmarshal", "parse error", "malformed"},
	}
	if s.Matches(err) {
		return []ActionableSuggestion{s}, nil
	}
	return nil, nil
}
