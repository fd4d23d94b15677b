package worldctx

import "encoding/json"

// Clone deep-copies the context through its JSON form. It is used by hosts
// that keep a pristine copy for snapshots; it is not on the step path.
func (c *Context) Clone() (*Context, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out Context
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Context) SetRelationship(from, to ActorID, r Relationship) {
	if c.Relations == nil {
		c.Relations = map[ActorID]map[ActorID]Relationship{}
	}
	m := c.Relations[from]
	if m == nil {
		m = map[ActorID]Relationship{}
		c.Relations[from] = m
	}
	m[to] = r
}

func (c *Context) Record(owner ActorID, m Memory) {
	if c.Journals == nil {
		c.Journals = map[ActorID][]Memory{}
	}
	c.Journals[owner] = append(c.Journals[owner], m)
}

func (c *Context) SetFlag(flag string, v bool) {
	if c.WorldFlags == nil {
		c.WorldFlags = map[string]bool{}
	}
	c.WorldFlags[flag] = v
}
