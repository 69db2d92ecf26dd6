package services

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/models"
)

var (
	ErrInvalidIPAddress = errors.New("invalid IP address")
	ErrInvalidListType  = errors.New("invalid list type")
	ErrEntryNotFound    = errors.New("ip list entry not found")
)

// IPListService manages whitelist/blacklist entries. Adds always insert a new
// row; the most recent row per (ip, list_type) is the authoritative one and
// expiry is evaluated lazily at read time, so no background sweep is needed
// for the state machine to be correct. Historical blacklist rows are kept as
// the violation history behind escalation.
type IPListService struct {
	db *gorm.DB
}

// NewIPListService returns an IPListService using the provided DB.
func NewIPListService(db *gorm.DB) *IPListService {
	return &IPListService{db: db}
}

// WhitelistAdd inserts a whitelist entry. ttlMinutes <= 0 means permanent.
func (s *IPListService) WhitelistAdd(ip string, ttlMinutes int, reason string) (*models.IPListEntry, error) {
	return s.add(ip, models.ListTypeWhitelist, ttlMinutes, reason)
}

// BlacklistAdd inserts a blacklist entry. ttlMinutes <= 0 means permanent.
func (s *IPListService) BlacklistAdd(ip string, ttlMinutes int, reason string) (*models.IPListEntry, error) {
	return s.add(ip, models.ListTypeBlacklist, ttlMinutes, reason)
}

func (s *IPListService) add(ip, listType string, ttlMinutes int, reason string) (*models.IPListEntry, error) {
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}

	entry := &models.IPListEntry{
		UUID:      uuid.NewString(),
		IPAddress: ip,
		ListType:  listType,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if ttlMinutes > 0 {
		expires := time.Now().Add(time.Duration(ttlMinutes) * time.Minute)
		entry.ExpiresAt = &expires
	}

	if err := s.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// IsWhitelisted reports whether the IP's authoritative whitelist entry is
// active. Whitelisting always wins over any block state.
func (s *IPListService) IsWhitelisted(ip string) (bool, error) {
	return s.isListed(ip, models.ListTypeWhitelist)
}

// IsBlacklisted reports whether the IP's authoritative blacklist entry is
// active. An expired entry reverts the IP to normal evaluation without any
// explicit transition.
func (s *IPListService) IsBlacklisted(ip string) (bool, error) {
	return s.isListed(ip, models.ListTypeBlacklist)
}

func (s *IPListService) isListed(ip, listType string) (bool, error) {
	if net.ParseIP(ip) == nil {
		return false, fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}

	var entry models.IPListEntry
	err := s.db.Where("ip_address = ? AND list_type = ?", ip, listType).
		Order("created_at desc, id desc").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	return entry.Active(time.Now()), nil
}

// List enumerates active entries, newest first, optionally filtered by list
// type. Superseded rows for the same IP are collapsed to the authoritative one.
func (s *IPListService) List(listType string) ([]models.IPListEntry, error) {
	if listType != "" && listType != models.ListTypeWhitelist && listType != models.ListTypeBlacklist {
		return nil, fmt.Errorf("%w: %s", ErrInvalidListType, listType)
	}

	var entries []models.IPListEntry
	q := s.db.Order("created_at desc, id desc")
	if listType != "" {
		q = q.Where("list_type = ?", listType)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	seen := make(map[string]bool)
	active := make([]models.IPListEntry, 0, len(entries))
	for _, e := range entries {
		key := e.IPAddress + "/" + e.ListType
		if seen[key] {
			continue
		}
		seen[key] = true
		if e.Active(now) {
			active = append(active, e)
		}
	}
	return active, nil
}

// Remove deletes the authoritative entry for (ip, listType). Superseded rows
// stay behind as violation history. Returns ErrEntryNotFound when the IP has
// no active entry of that type.
func (s *IPListService) Remove(ip, listType string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}
	if listType != models.ListTypeWhitelist && listType != models.ListTypeBlacklist {
		return fmt.Errorf("%w: %s", ErrInvalidListType, listType)
	}

	var entry models.IPListEntry
	err := s.db.Where("ip_address = ? AND list_type = ?", ip, listType).
		Order("created_at desc, id desc").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntryNotFound
		}
		return err
	}
	if !entry.Active(time.Now()) {
		return ErrEntryNotFound
	}

	return s.db.Delete(&entry).Error
}

// CountBlacklistedSince counts blacklist rows for an IP created after the
// given instant. This derived aggregate is the IP's violation history; it is
// recomputed on every escalation rather than stored, so manual edits to the
// list can never leave a stale counter behind.
func (s *IPListService) CountBlacklistedSince(ip string, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.IPListEntry{}).
		Where("ip_address = ? AND list_type = ? AND created_at >= ?", ip, models.ListTypeBlacklist, since).
		Count(&n).Error
	return n, err
}
