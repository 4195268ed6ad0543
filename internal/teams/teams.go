// Package teams loads team files and serializes them to the packed form
// the engine's player-assignment command accepts.
//
// Two interchangeable input formats are recognized: a team that is
// already packed (a single pipe-delimited line, passed through after
// validation), and a JSON array of set objects, which is validated and
// packed here. Anything else is a fatal, user-visible error.
package teams

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Stats holds per-stat values for EV or IV spreads.
type Stats struct {
	HP  int `json:"hp"`
	Atk int `json:"atk"`
	Def int `json:"def"`
	SpA int `json:"spa"`
	SpD int `json:"spd"`
	Spe int `json:"spe"`
}

// Set is one team member in the JSON team format.
type Set struct {
	Name      string   `json:"name,omitempty"`
	Species   string   `json:"species"`
	Item      string   `json:"item,omitempty"`
	Ability   string   `json:"ability,omitempty"`
	Moves     []string `json:"moves"`
	Nature    string   `json:"nature,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	EVs       *Stats   `json:"evs,omitempty"`
	IVs       *Stats   `json:"ivs,omitempty"`
	Shiny     bool     `json:"shiny,omitempty"`
	Level     int      `json:"level,omitempty"`
	Happiness *int     `json:"happiness,omitempty"`
}

// Load reads a team file and returns its packed serialization. Every
// failure here is fatal for the run: an unreadable, empty, or invalid
// team file means the session must not start.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read team file: %w", err)
	}
	packed, err := Parse(string(data))
	if err != nil {
		return "", fmt.Errorf("team file %s: %w", path, err)
	}
	return packed, nil
}

// Parse detects the team format, validates the team, and returns the
// packed form.
func Parse(data string) (string, error) {
	text := strings.TrimSpace(data)
	if text == "" {
		return "", fmt.Errorf("team data is empty")
	}

	if strings.HasPrefix(text, "[") {
		var sets []Set
		if err := json.Unmarshal([]byte(text), &sets); err != nil {
			return "", fmt.Errorf("parse JSON team: %w", err)
		}
		if err := Validate(sets); err != nil {
			return "", err
		}
		return Pack(sets), nil
	}

	if strings.Contains(text, "|") {
		// Already packed. Packed teams are one line by construction.
		if strings.ContainsRune(text, '\n') {
			return "", fmt.Errorf("packed team must be a single line")
		}
		return text, nil
	}

	return "", fmt.Errorf("unrecognized team format (expected packed text or a JSON set array)")
}

// Validate checks the constraints the engine would reject a team for.
func Validate(sets []Set) error {
	if len(sets) == 0 {
		return fmt.Errorf("team has no sets")
	}
	if len(sets) > 6 {
		return fmt.Errorf("team has %d sets, maximum is 6", len(sets))
	}
	for i, set := range sets {
		if strings.TrimSpace(set.Species) == "" {
			return fmt.Errorf("set %d: species is required", i+1)
		}
		if len(set.Moves) == 0 {
			return fmt.Errorf("set %d (%s): at least one move is required", i+1, set.Species)
		}
		if len(set.Moves) > 4 {
			return fmt.Errorf("set %d (%s): %d moves, maximum is 4", i+1, set.Species, len(set.Moves))
		}
		if set.Level < 0 || set.Level > 100 {
			return fmt.Errorf("set %d (%s): level %d out of range", i+1, set.Species, set.Level)
		}
	}
	return nil
}

// Pack serializes a validated team to the engine's packed format:
// per set `name|species|item|ability|moves|nature|evs|gender|ivs|shiny|level|happiness`,
// sets joined with `]`. Fields that hold their default are left blank.
func Pack(sets []Set) string {
	packed := make([]string, 0, len(sets))
	for _, set := range sets {
		packed = append(packed, packSet(set))
	}
	return strings.Join(packed, "]")
}

func packSet(set Set) string {
	name := set.Name
	if name == "" {
		name = set.Species
	}
	species := ""
	if toID(set.Species) != toID(name) {
		species = toID(set.Species)
	}

	moves := make([]string, 0, len(set.Moves))
	for _, move := range set.Moves {
		moves = append(moves, toID(move))
	}

	shiny := ""
	if set.Shiny {
		shiny = "S"
	}
	level := ""
	if set.Level > 0 && set.Level != 100 {
		level = strconv.Itoa(set.Level)
	}
	happiness := ""
	if set.Happiness != nil && *set.Happiness != 255 {
		happiness = strconv.Itoa(*set.Happiness)
	}

	fields := []string{
		name,
		species,
		toID(set.Item),
		toID(set.Ability),
		strings.Join(moves, ","),
		set.Nature,
		packStats(set.EVs, 0),
		set.Gender,
		packStats(set.IVs, 31),
		shiny,
		level,
		happiness,
	}
	return strings.Join(fields, "|")
}

// packStats renders a spread, blank when every stat holds def. Per-stat
// values equal to def are also blank, matching the packed convention.
func packStats(stats *Stats, def int) string {
	if stats == nil {
		return ""
	}
	values := []int{stats.HP, stats.Atk, stats.Def, stats.SpA, stats.SpD, stats.Spe}
	all := true
	parts := make([]string, len(values))
	for i, v := range values {
		if v != def {
			parts[i] = strconv.Itoa(v)
			all = false
		}
	}
	if all {
		return ""
	}
	return strings.Join(parts, ",")
}

// toID normalizes a display name to the engine's identifier form:
// lowercase, alphanumerics only.
func toID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
