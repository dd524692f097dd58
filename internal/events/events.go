// Package events provides an event system for scenario, player and network notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventScenarioStart is emitted when a scenario begins launching players
	EventScenarioStart EventType = "scenario_start"
	// EventScenarioComplete is emitted once a scenario has a verdict
	EventScenarioComplete EventType = "scenario_complete"
	// EventBurstStart is emitted before each burst of a repeated-burst scenario
	EventBurstStart EventType = "burst_start"
	// EventPlayerOutcome is emitted when a virtual player reaches a terminal state
	EventPlayerOutcome EventType = "player_outcome"
	// EventProfileSwitch is emitted when the active network profile is replaced
	EventProfileSwitch EventType = "profile_switch"
)

// Event represents one notification on the bus
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Scenario string `json:"scenario,omitempty"`
	Profile  string `json:"profile,omitempty"`
	Category string `json:"category,omitempty"`
	Verdict  string `json:"verdict,omitempty"`
	Count    int    `json:"count,omitempty"`
	Index    int    `json:"index,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewScenarioStartEvent creates a scenario start event
func NewScenarioStartEvent(scenario string, players int) Event {
	return Event{
		Type:      EventScenarioStart,
		Timestamp: time.Now(),
		Subject:   scenario,
		Data: EventData{
			Scenario: scenario,
			Count:    players,
		},
	}
}

// NewScenarioCompleteEvent creates a scenario completion event carrying the verdict
func NewScenarioCompleteEvent(scenario, verdict string, attempted int) Event {
	return Event{
		Type:      EventScenarioComplete,
		Timestamp: time.Now(),
		Subject:   scenario,
		Data: EventData{
			Scenario: scenario,
			Verdict:  verdict,
			Count:    attempted,
		},
	}
}

// NewBurstStartEvent creates a burst start event. index is zero based.
func NewBurstStartEvent(scenario string, index, size int, profile string) Event {
	return Event{
		Type:      EventBurstStart,
		Timestamp: time.Now(),
		Subject:   scenario,
		Data: EventData{
			Scenario: scenario,
			Index:    index,
			Count:    size,
			Profile:  profile,
		},
	}
}

// NewPlayerOutcomeEvent creates a terminal outcome event for one player
func NewPlayerOutcomeEvent(playerID, category string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventPlayerOutcome,
		Timestamp: time.Now(),
		Subject:   playerID,
		Data: EventData{
			Category: category,
			Error:    errMsg,
		},
	}
}

// NewProfileSwitchEvent creates a network profile switch event.
// An empty profile means the simulator was cleared.
func NewProfileSwitchEvent(profile string) Event {
	return Event{
		Type:      EventProfileSwitch,
		Timestamp: time.Now(),
		Data: EventData{
			Profile: profile,
		},
	}
}
