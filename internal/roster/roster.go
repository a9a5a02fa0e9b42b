// Package roster holds the authoritative list of people tasks can be
// assigned to. Matching is exact string comparison on the full name;
// the validation prompt asks the model to avoid spelling variants, and
// no code-level normalization is applied on top.
package roster

type Member struct {
	FullName    string
	SlackUserID string
}

type Roster struct {
	members []Member
	byName  map[string]Member
	byID    map[string]Member
}

func New(members []Member) *Roster {
	r := &Roster{
		members: members,
		byName:  make(map[string]Member, len(members)),
		byID:    make(map[string]Member, len(members)),
	}
	for _, m := range members {
		if m.FullName != "" {
			r.byName[m.FullName] = m
		}
		if m.SlackUserID != "" {
			r.byID[m.SlackUserID] = m
		}
	}
	return r
}

// Names returns the full names in roster order, for prompt embedding.
func (r *Roster) Names() []string {
	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		if m.FullName != "" {
			names = append(names, m.FullName)
		}
	}
	return names
}

// Contains reports whether fullName exactly matches a roster entry.
func (r *Roster) Contains(fullName string) bool {
	_, ok := r.byName[fullName]
	return ok
}

func (r *Roster) ByName(fullName string) (Member, bool) {
	m, ok := r.byName[fullName]
	return m, ok
}

func (r *Roster) BySlackID(id string) (Member, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Pairs returns "name<TAB>id" lines for prompts that resolve Slack IDs.
func (r *Roster) Pairs() []Member {
	return r.members
}
