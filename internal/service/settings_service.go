package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/loan-desk-api/internal/dto"
	"github.com/noah-isme/loan-desk-api/internal/models"
	"github.com/noah-isme/loan-desk-api/pkg/academic"
	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

// Loan setting keys.
const (
	SettingTrimesterCutoff1   = "trimester_cutoff_1"
	SettingTrimesterCutoff2   = "trimester_cutoff_2"
	SettingTrimesterCutoff3   = "trimester_cutoff_3"
	SettingPersonalQuotaLimit = "personal_quota_limit"
)

const (
	defaultPersonalQuota = 5
	maxPersonalQuota     = 50
)

var cutoffSettings = []string{SettingTrimesterCutoff1, SettingTrimesterCutoff2, SettingTrimesterCutoff3}

type settingDef struct {
	kind        models.SettingKind
	description string
}

var settingDefs = map[string]settingDef{
	SettingTrimesterCutoff1:   {models.SettingKindDayMonth, "Last day (DD-MM) of the first trimester"},
	SettingTrimesterCutoff2:   {models.SettingKindDayMonth, "Last day (DD-MM) of the second trimester"},
	SettingTrimesterCutoff3:   {models.SettingKindDayMonth, "Last day (DD-MM) of the third trimester"},
	SettingPersonalQuotaLimit: {models.SettingKindInteger, "Personal use requests allowed per trimester"},
}

var settingOrder = []string{SettingTrimesterCutoff1, SettingTrimesterCutoff2, SettingTrimesterCutoff3, SettingPersonalQuotaLimit}

type settingStore interface {
	All(ctx context.Context) ([]models.LoanSetting, error)
	Save(ctx context.Context, settings []models.LoanSetting) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SettingsServiceConfig carries the environment defaults.
type SettingsServiceConfig struct {
	Defaults map[string]string
}

// DefaultsFromLoans maps environment loan settings onto setting defaults.
// Missing or blank values keep the built-in defaults.
func DefaultsFromLoans(cutoffs []string, personalQuota int) map[string]string {
	defaults := make(map[string]string, len(settingOrder))
	for i, key := range cutoffSettings {
		if i < len(cutoffs) && strings.TrimSpace(cutoffs[i]) != "" {
			defaults[key] = strings.TrimSpace(cutoffs[i])
		}
	}
	if personalQuota > 0 {
		defaults[SettingPersonalQuotaLimit] = strconv.Itoa(personalQuota)
	}
	return defaults
}

// SettingsService exposes the loan desk settings that replace the old global
// key/value store. Each operation reads one snapshot of the stored overrides.
type SettingsService struct {
	store    settingStore
	audit    auditLogger
	logger   *zap.Logger
	defaults map[string]string
}

// NewSettingsService constructs the service. Invalid defaults are dropped in
// favour of the built-in ones.
func NewSettingsService(store settingStore, audit auditLogger, logger *zap.Logger, cfg SettingsServiceConfig) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := map[string]string{SettingPersonalQuotaLimit: strconv.Itoa(defaultPersonalQuota)}
	for i, c := range academic.DefaultCutoffs() {
		defaults[cutoffSettings[i]] = c.String()
	}
	for key, value := range cfg.Defaults {
		def, ok := settingDefs[key]
		if !ok {
			continue
		}
		normalized, err := normalizeSetting(key, def, value)
		if err != nil {
			logger.Warn("ignoring invalid setting default", zap.String("key", key), zap.String("value", value))
			continue
		}
		defaults[key] = normalized
	}
	return &SettingsService{store: store, audit: audit, logger: logger, defaults: defaults}
}

// List returns the effective value of every setting.
func (s *SettingsService) List(ctx context.Context) ([]dto.SettingItem, error) {
	stored, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]dto.SettingItem, 0, len(settingOrder))
	for _, key := range settingOrder {
		items = append(items, s.item(key, stored))
	}
	return items, nil
}

// Get returns the effective value of one setting.
func (s *SettingsService) Get(ctx context.Context, key string) (*dto.SettingItem, error) {
	if _, ok := settingDefs[key]; !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "setting not found")
	}
	stored, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	item := s.item(key, stored)
	return &item, nil
}

// Update changes a single setting.
func (s *SettingsService) Update(ctx context.Context, actor *models.JWTClaims, key, value string) (*dto.SettingItem, error) {
	if _, ok := settingDefs[key]; !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "setting not found")
	}
	items, err := s.apply(ctx, actor, map[string]string{key: value})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// BulkUpdate changes several settings atomically.
func (s *SettingsService) BulkUpdate(ctx context.Context, actor *models.JWTClaims, req dto.BulkUpdateSettingsRequest) ([]dto.SettingItem, error) {
	if len(req.Values) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no settings given")
	}
	return s.apply(ctx, actor, req.Values)
}

// CalendarCutoffs returns the three trimester cutoffs in course order.
func (s *SettingsService) CalendarCutoffs(ctx context.Context) (academic.Cutoffs, error) {
	stored, err := s.snapshot(ctx)
	if err != nil {
		return academic.Cutoffs{}, err
	}
	cutoffs, err := s.cutoffsFrom(stored)
	if err != nil {
		return academic.Cutoffs{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid trimester cutoffs")
	}
	return cutoffs, nil
}

// PersonalQuota returns the personal use request limit per trimester.
func (s *SettingsService) PersonalQuota(ctx context.Context) (int, error) {
	stored, err := s.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	raw := s.value(SettingPersonalQuotaLimit, stored)
	limit, convErr := strconv.Atoi(raw)
	if convErr != nil || limit < 1 {
		s.logger.Warn("invalid personal quota limit, using default", zap.String("value", raw))
		return defaultPersonalQuota, nil
	}
	return limit, nil
}

func (s *SettingsService) apply(ctx context.Context, actor *models.JWTClaims, changes map[string]string) ([]dto.SettingItem, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	stored, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	next := make(map[string]models.LoanSetting, len(stored)+len(keys))
	for key, row := range stored {
		next[key] = row
	}

	rows := make([]models.LoanSetting, 0, len(keys))
	for _, key := range keys {
		def, ok := settingDefs[key]
		if !ok {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "unsupported setting", map[string]interface{}{"key": key})
		}
		value, err := normalizeSetting(key, def, changes[key])
		if err != nil {
			return nil, err
		}
		row := models.LoanSetting{Key: key, Value: value, Kind: def.kind, UpdatedBy: userIDPtr(actor)}
		next[key] = row
		rows = append(rows, row)
	}

	if _, err := s.cutoffsFrom(next); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	if err := s.store.Save(ctx, rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save settings")
	}

	items := make([]dto.SettingItem, 0, len(rows))
	for _, row := range rows {
		s.recordAudit(ctx, actor, row.Key, s.value(row.Key, stored), row.Value)
		items = append(items, s.item(row.Key, next))
	}
	return items, nil
}

func (s *SettingsService) snapshot(ctx context.Context) (map[string]models.LoanSetting, error) {
	rows, err := s.store.All(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	stored := make(map[string]models.LoanSetting, len(rows))
	for _, row := range rows {
		if _, ok := settingDefs[row.Key]; ok && row.Value != "" {
			stored[row.Key] = row
		}
	}
	return stored, nil
}

func (s *SettingsService) value(key string, stored map[string]models.LoanSetting) string {
	if row, ok := stored[key]; ok {
		return row.Value
	}
	return s.defaults[key]
}

func (s *SettingsService) cutoffsFrom(stored map[string]models.LoanSetting) (academic.Cutoffs, error) {
	raw := make([]string, len(cutoffSettings))
	for i, key := range cutoffSettings {
		raw[i] = s.value(key, stored)
	}
	cutoffs, err := academic.ParseCutoffs(raw)
	if err != nil {
		return academic.Cutoffs{}, err
	}
	if !cutoffs.Ordered() {
		return academic.Cutoffs{}, fmt.Errorf("trimester cutoffs %s must follow course order from September", strings.Join(raw, ", "))
	}
	return cutoffs, nil
}

func (s *SettingsService) item(key string, stored map[string]models.LoanSetting) dto.SettingItem {
	def := settingDefs[key]
	item := dto.SettingItem{
		Key:         key,
		Value:       s.defaults[key],
		Kind:        string(def.kind),
		Description: def.description,
	}
	if row, ok := stored[key]; ok {
		item.Value = row.Value
		item.Overridden = true
		item.UpdatedBy = row.UpdatedBy
		if !row.UpdatedAt.IsZero() {
			updatedAt := row.UpdatedAt
			item.UpdatedAt = &updatedAt
		}
	}
	return item
}

func (s *SettingsService) recordAudit(ctx context.Context, actor *models.JWTClaims, key, oldValue, newValue string) {
	if s.audit == nil {
		return
	}
	oldBytes, _ := json.Marshal(map[string]string{"value": oldValue})
	newBytes, _ := json.Marshal(map[string]string{"value": newValue})
	resourceID := key
	entry := &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionSettingUpdate,
		Resource:   "loan_setting",
		ResourceID: &resourceID,
		OldValues:  oldBytes,
		NewValues:  newBytes,
		IPAddress:  "system",
		UserAgent:  "settings-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record setting audit", zap.String("key", key), zap.Error(err))
	}
}

func normalizeSetting(key string, def settingDef, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch def.kind {
	case models.SettingKindDayMonth:
		cutoff, err := academic.ParseCutoff(value)
		if err != nil {
			return "", appErrors.WithDetails(appErrors.ErrValidation, fmt.Sprintf("%s expects a DD-MM date", key), map[string]interface{}{"key": key})
		}
		return cutoff.String(), nil
	case models.SettingKindInteger:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > maxPersonalQuota {
			return "", appErrors.WithDetails(appErrors.ErrValidation, fmt.Sprintf("%s expects an integer between 1 and %d", key, maxPersonalQuota), map[string]interface{}{"key": key})
		}
		return strconv.Itoa(n), nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, "unsupported setting kind")
}

func userIDPtr(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}
