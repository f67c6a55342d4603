package scenario

import (
	"errors"
	"fmt"
	"os"

	"artemis/internal/interaction"
	"artemis/internal/mcp"

	"gopkg.in/yaml.v3"
)

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return LoadScenarioFromBytes(data)
}

// LoadScenarioFromBytes loads a scenario from YAML data
func LoadScenarioFromBytes(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := ValidateScenario(&sc); err != nil {
		return nil, fmt.Errorf("scenario validation failed: %w", err)
	}
	return &sc, nil
}

// ValidateScenario checks every step decodes as its event type
func ValidateScenario(sc *Scenario) error {
	var errs []error
	if sc.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(sc.Events) == 0 {
		errs = append(errs, errors.New("at least one event is required"))
	}
	for i, step := range sc.Events {
		if step.DelayMs < 0 {
			errs = append(errs, fmt.Errorf("event %d: delayMs must not be negative", i))
		}
		ev, err := mcp.NewEvent(mcp.EventType(step.Type), step.Payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		if _, err := mcp.Decode(ev); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
		}
	}
	if sc.Expect != nil && sc.Expect.State != "" && !knownState(sc.Expect.State) {
		errs = append(errs, fmt.Errorf("expect.state %q is not a known state", sc.Expect.State))
	}
	return errors.Join(errs...)
}

func knownState(s string) bool {
	switch interaction.State(s) {
	case interaction.Idle, interaction.Listening, interaction.Processing, interaction.Responding,
		interaction.Suggesting, interaction.Executing, interaction.Offline:
		return true
	}
	return false
}
