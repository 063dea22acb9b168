package anamnesis

import (
	"database/sql"
	"encoding/json"
	"time"
)

// personaStore persists the current persona vector and its history log.
type personaStore struct {
	db *sql.DB
}

func newPersonaStore(s *Store) (*personaStore, error) {
	p := &personaStore{db: s.DB()}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *personaStore) migrate() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS persona (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			current TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS persona_history (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			parameters           TEXT NOT NULL,
			timestamp            INTEGER NOT NULL,
			average_satisfaction REAL,
			source               TEXT NOT NULL
		);
	`)
	return err
}

// Load returns the current persona, seeding the default midpoint vector
// on first use.
func (p *personaStore) Load() (Persona, error) {
	var raw string
	err := p.db.QueryRow(`SELECT current FROM persona WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		def := DefaultPersona()
		if err := p.Save(def); err != nil {
			return def, err
		}
		return def, nil
	}
	if err != nil {
		return Persona{}, err
	}
	var persona Persona
	if err := json.Unmarshal([]byte(raw), &persona); err != nil {
		return Persona{}, err
	}
	return persona, nil
}

// Save overwrites the singleton persona row.
func (p *personaStore) Save(persona Persona) error {
	raw, err := json.Marshal(persona)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`
		INSERT INTO persona (id, current) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET current = excluded.current`, string(raw))
	return err
}

// AppendHistory logs a persona change with its source tag.
func (p *personaStore) AppendHistory(entry PersonaHistoryEntry) error {
	raw, err := json.Marshal(entry.Parameters)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`
		INSERT INTO persona_history (parameters, timestamp, average_satisfaction, source)
		VALUES (?, ?, ?, ?)`,
		string(raw), entry.Timestamp.Unix(), entry.AverageSatisfaction, string(entry.Source))
	return err
}

// History returns the most recent n persona-history entries, newest first.
func (p *personaStore) History(n int) ([]PersonaHistoryEntry, error) {
	rows, err := p.db.Query(`
		SELECT id, parameters, timestamp, average_satisfaction, source
		FROM persona_history ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PersonaHistoryEntry
	for rows.Next() {
		var e PersonaHistoryEntry
		var raw, source string
		var ts int64
		var avg sql.NullFloat64
		if err := rows.Scan(&e.ID, &raw, &ts, &avg, &source); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Parameters); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		if avg.Valid {
			v := avg.Float64
			e.AverageSatisfaction = &v
		}
		e.Source = PersonaSource(source)
		out = append(out, e)
	}
	return out, rows.Err()
}
