// Package credential implements the encrypted, file-locked OAuth
// account pool shared by every orchestrator process on a host: agents
// never hold long-lived tokens directly, they borrow the best
// available account from this pool and mark it rate-limited when the
// provider pushes back.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// lockTimeout mirrors the 90-second bound the pool's file lock uses
// before giving up rather than wedging every orchestrator sharing the
// pool file.
const lockTimeout = 90 * time.Second

var ErrNoAccounts = errors.New("credential: no accounts configured")

// Pool manages the on-disk, encrypted OAuth credential pool. All
// mutating operations go through updateOnDisk, which re-reads the file
// under an exclusive lock, applies the mutation, and writes it back
// atomically, so two orchestrators editing the same pool never clobber
// each other's changes.
type Pool struct {
	path        string
	keyMaterial []byte

	mu         sync.Mutex
	accounts   []types.OAuthAccount
	rateLimits map[string]types.RateLimitInfo
}

// Open loads an existing pool file, or starts an empty in-memory pool
// if none exists yet (created on first Save/updateOnDisk).
func Open(path string, keyMaterial []byte) (*Pool, error) {
	p := &Pool{
		path:        path,
		keyMaterial: keyMaterial,
		rateLimits:  make(map[string]types.RateLimitInfo),
	}
	if err := p.loadFromDisk(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return p, nil
}

func (p *Pool) loadFromDisk() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}

	var file types.PoolFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("credential: pool file is not valid JSON: %w", err)
	}
	if file.Version != types.PoolVersion {
		return fmt.Errorf("credential: unsupported pool file version %d", file.Version)
	}

	if len(p.keyMaterial) > 0 {
		for i, acct := range file.Accounts {
			plain, err := open(p.keyMaterial, acct.Credentials.AccessToken)
			if err == nil {
				file.Accounts[i].Credentials.AccessToken = string(plain)
			}
			plain, err = open(p.keyMaterial, acct.Credentials.RefreshToken)
			if err == nil {
				file.Accounts[i].Credentials.RefreshToken = string(plain)
			}
		}
	}

	p.mu.Lock()
	p.accounts = file.Accounts
	if file.RateLimits != nil {
		p.rateLimits = file.RateLimits
	}
	p.mu.Unlock()
	return nil
}

func (p *Pool) saveToDisk() error {
	p.mu.Lock()
	accountsCopy := make([]types.OAuthAccount, len(p.accounts))
	copy(accountsCopy, p.accounts)
	rateLimitsCopy := make(map[string]types.RateLimitInfo, len(p.rateLimits))
	for k, v := range p.rateLimits {
		rateLimitsCopy[k] = v
	}
	p.mu.Unlock()

	if len(p.keyMaterial) > 0 {
		for i, acct := range accountsCopy {
			if sealed, err := seal(p.keyMaterial, []byte(acct.Credentials.AccessToken)); err == nil {
				accountsCopy[i].Credentials.AccessToken = sealed
			}
			if sealed, err := seal(p.keyMaterial, []byte(acct.Credentials.RefreshToken)); err == nil {
				accountsCopy[i].Credentials.RefreshToken = sealed
			}
		}
	}

	file := types.PoolFile{
		Version:    types.PoolVersion,
		Accounts:   accountsCopy,
		RateLimits: rateLimitsCopy,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("credential: marshal pool: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("credential: create pool directory: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("credential: write temp pool file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("credential: rename pool file: %w", err)
	}
	return nil
}

// updateOnDisk performs an atomic read-modify-write: it takes the file
// lock, reloads from disk (picking up any other process's changes),
// runs mutate against the now-current in-memory state, and writes the
// result back before releasing the lock.
func (p *Pool) updateOnDisk(mutate func() error) error {
	lock := newFileLock(p.path)
	if err := lock.lock(lockTimeout); err != nil {
		return err
	}
	defer lock.unlock()

	if err := p.loadFromDisk(); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := mutate(); err != nil {
		return err
	}
	return p.saveToDisk()
}

// AddAccount registers a new OAuth account at the given priority
// (0 = highest).
func (p *Pool) AddAccount(creds types.OAuthCredentials, priority int) error {
	return p.updateOnDisk(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, a := range p.accounts {
			if a.Credentials.AccountUUID == creds.AccountUUID {
				return fmt.Errorf("credential: account %s already present", creds.AccountUUID)
			}
		}
		p.accounts = append(p.accounts, types.OAuthAccount{Credentials: creds, Priority: priority})
		p.sortByPriorityLocked()
		return nil
	})
}

// RemoveAccount deletes an account and its rate-limit entry, if any.
func (p *Pool) RemoveAccount(accountUUID string) error {
	return p.updateOnDisk(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, a := range p.accounts {
			if a.Credentials.AccountUUID == accountUUID {
				p.accounts = append(p.accounts[:i], p.accounts[i+1:]...)
				delete(p.rateLimits, accountUUID)
				return nil
			}
		}
		return fmt.Errorf("credential: account %s not found", accountUUID)
	})
}

// GetBestAvailableAccount returns the highest-priority account that is
// not currently rate limited. Callers receive a copy; marking it
// rate-limited happens through a separate call, and there is nothing
// to release since the pool does not track "checked out" state.
func (p *Pool) GetBestAvailableAccount() (types.OAuthCredentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.accounts) == 0 {
		return types.OAuthCredentials{}, ErrNoAccounts
	}

	now := time.Now().Unix()
	for _, a := range p.accounts {
		rl, limited := p.rateLimits[a.Credentials.AccountUUID]
		if !limited || rl.UntilEpoch <= now {
			return a.Credentials, nil
		}
	}
	return types.OAuthCredentials{}, fmt.Errorf("credential: all %d accounts are rate limited", len(p.accounts))
}

// MarkRateLimited records that an account should not be selected again
// until retryAfterSeconds have elapsed.
func (p *Pool) MarkRateLimited(accountUUID string, retryAfterSeconds int) error {
	return p.updateOnDisk(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.rateLimits[accountUUID] = types.RateLimitInfo{
			UntilEpoch:  time.Now().Add(time.Duration(retryAfterSeconds) * time.Second).Unix(),
			RetryAfterS: retryAfterSeconds,
		}
		return nil
	})
}

// UpdateAccountCredentials replaces the stored credentials for an
// account after a token refresh.
func (p *Pool) UpdateAccountCredentials(accountUUID string, creds types.OAuthCredentials) error {
	return p.updateOnDisk(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, a := range p.accounts {
			if a.Credentials.AccountUUID == accountUUID {
				p.accounts[i].Credentials = creds
				return nil
			}
		}
		return fmt.Errorf("credential: account %s not found", accountUUID)
	})
}

// ClearRateLimits removes every rate-limit entry. Intended for tests
// and operator recovery, not normal operation.
func (p *Pool) ClearRateLimits() error {
	return p.updateOnDisk(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.rateLimits = make(map[string]types.RateLimitInfo)
		return nil
	})
}

// GetAllAccountsInfo returns display-ready status for every account,
// sorted by priority.
func (p *Pool) GetAllAccountsInfo() []types.AccountInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().Unix()
	out := make([]types.AccountInfo, 0, len(p.accounts))
	for _, a := range p.accounts {
		info := types.AccountInfo{
			Priority:    a.Priority,
			AccountUUID: a.Credentials.AccountUUID,
			ExpiresAt:   a.Credentials.ExpiresAt,
			ExpiresSoon: a.Credentials.ExpiresAt-float64(now) < 300,
		}
		if rl, limited := p.rateLimits[a.Credentials.AccountUUID]; limited && rl.UntilEpoch > now {
			info.IsRateLimited = true
			info.SecondsUntilAvailable = int(rl.UntilEpoch - now)
		}
		out = append(out, info)
	}
	return out
}

func (p *Pool) sortByPriorityLocked() {
	sort.SliceStable(p.accounts, func(i, j int) bool {
		return p.accounts[i].Priority < p.accounts[j].Priority
	})
}
