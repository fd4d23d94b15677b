package worldctx

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads a JSON world fixture such as configs/worlds/office_drama.json.
func Load(path string) (*Context, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.PlayerID == "" {
		return nil, fmt.Errorf("%s: player_id is required", path)
	}
	if _, ok := c.Player(); !ok {
		return nil, fmt.Errorf("%s: player %q missing from actors", path, c.PlayerID)
	}
	return &c, nil
}
