package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/domain"
)

// Account is one provisioned participant: its bearer token, profile and
// avatar. Accounts come from configuration, the relay has no user store.
type Account struct {
	Token   string
	Avatar  string
	Profile domain.Profile
}

// Directory answers the profile side of the backend API: token to
// account, email to user info, plus the tenant the relay serves.
type Directory struct {
	tenant  domain.Tenant
	byToken map[string]*Account
	byEmail map[string]*Account

	mu          sync.Mutex
	messages    []domain.MessageRecord
	connections []ConnectionRecord
}

// ConnectionRecord is one audited session join.
type ConnectionRecord struct {
	Connection domain.ConnectionID `json:"id"`
	Session    domain.SessionID    `json:"session"`
}

func NewDirectory(tenant domain.Tenant, accounts []Account) *Directory {
	d := &Directory{
		tenant:  tenant,
		byToken: make(map[string]*Account, len(accounts)),
		byEmail: make(map[string]*Account, len(accounts)),
	}
	for i := range accounts {
		a := &accounts[i]
		d.byToken[a.Token] = a
		d.byEmail[a.Profile.Email] = a
	}
	log.Info().Str("module", "app.directory").Int("accounts", len(accounts)).Str("tenant", tenant.Key).Msg("directory loaded")
	return d
}

func (d *Directory) Tenant() domain.Tenant { return d.tenant }

func (d *Directory) ByToken(token string) (*Account, bool) {
	a, ok := d.byToken[token]
	return a, ok
}

func (d *Directory) ByEmail(email string) (*Account, bool) {
	a, ok := d.byEmail[email]
	return a, ok
}

func (d *Directory) UserInfo(email string) (domain.UserInfo, bool) {
	a, ok := d.byEmail[email]
	if !ok {
		return domain.UserInfo{}, false
	}
	return domain.UserInfo{BaseProfile: a.Profile.BaseProfile, Avatar: a.Avatar}, true
}

// RecordMessage keeps an audit copy of a delivered chat message.
func (d *Directory) RecordMessage(rec domain.MessageRecord) {
	d.mu.Lock()
	d.messages = append(d.messages, rec)
	d.mu.Unlock()
}

func (d *Directory) Messages() []domain.MessageRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.MessageRecord, len(d.messages))
	copy(out, d.messages)
	return out
}

func (d *Directory) RecordConnection(rec ConnectionRecord) {
	d.mu.Lock()
	d.connections = append(d.connections, rec)
	d.mu.Unlock()
}

func (d *Directory) Connections() []ConnectionRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ConnectionRecord, len(d.connections))
	copy(out, d.connections)
	return out
}
