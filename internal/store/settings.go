package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const (
	KeyApplicationID = "gateway.app_id"
	KeyToken         = "gateway.token"
)

var ErrSealed = errors.New("setting is sealed and no secret is configured")

const settingUpsert = `INSERT INTO settings (key, value, sealed, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, sealed = excluded.sealed, updated_at = excluded.updated_at`

func (s *Store) GetSetting(key string) (string, error) {
	var value string
	var sealed bool
	err := s.db.QueryRow(`SELECT value, sealed FROM settings WHERE key = ?`, key).Scan(&value, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %q: %w", key, err)
	}
	if !sealed {
		return value, nil
	}
	if s.sealer == nil {
		return "", fmt.Errorf("%s: %w", key, ErrSealed)
	}
	plain, err := s.sealer.Open(value)
	if err != nil {
		return "", fmt.Errorf("opening setting %q: %w", key, err)
	}
	return plain, nil
}

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(settingUpsert, key, value, false)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteSetting(key string) error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting setting %q: %w", key, err)
	}
	return nil
}

type GatewayCredentials struct {
	ApplicationID string
	Token         string
}

func (c GatewayCredentials) Complete() bool {
	return c.ApplicationID != "" && c.Token != ""
}

func (s *Store) GetGatewayCredentials() (GatewayCredentials, error) {
	var creds GatewayCredentials
	var err error
	if creds.ApplicationID, err = s.GetSetting(KeyApplicationID); err != nil {
		return creds, err
	}
	if creds.Token, err = s.GetSetting(KeyToken); err != nil {
		return creds, err
	}
	return creds, nil
}

// SetGatewayCredentials writes both values in one transaction. An empty token
// leaves the stored one untouched.
func (s *Store) SetGatewayCredentials(creds GatewayCredentials) error {
	token, sealed := creds.Token, false
	if token != "" && s.sealer != nil {
		v, err := s.sealer.Seal(token)
		if err != nil {
			return fmt.Errorf("sealing token: %w", err)
		}
		token, sealed = v, true
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(settingUpsert, KeyApplicationID, creds.ApplicationID, false); err != nil {
		return fmt.Errorf("setting %q: %w", KeyApplicationID, err)
	}
	if token != "" {
		if _, err := tx.Exec(settingUpsert, KeyToken, token, sealed); err != nil {
			return fmt.Errorf("setting %q: %w", KeyToken, err)
		}
	}
	return tx.Commit()
}
