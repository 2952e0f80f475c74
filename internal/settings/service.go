package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/platform/cache"
	"github.com/marmitas/backoffice/internal/shared"
)

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// Service owns the load/save boundary of message settings.
type Service struct {
	repo   Repository
	cache  *cache.JSONCache
	logger *slog.Logger
}

// NewService constructs a settings Service. cache may be nil.
func NewService(repo Repository, c *cache.JSONCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: c, logger: logger}
}

// MessageSettings returns the stored settings as saved. Empty fields mean the
// composer defaults apply.
func (s *Service) MessageSettings(ctx context.Context) (delivery.Settings, error) {
	key, err := s.cache.Key(ctx, messagesKey)
	if err != nil {
		s.logger.Warn("settings cache key", slog.Any("error", err))
		return s.loadFromRepo(ctx)
	}
	var out delivery.Settings
	if err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.loadFromRepo(ctx)
	}); err != nil {
		return delivery.Settings{}, err
	}
	return out, nil
}

// Messages returns the stored settings with the stock templates filled in.
func (s *Service) Messages(ctx context.Context) (delivery.Settings, error) {
	stored, err := s.MessageSettings(ctx)
	if err != nil {
		return delivery.Settings{}, err
	}
	return withDefaults(stored), nil
}

func (s *Service) loadFromRepo(ctx context.Context) (delivery.Settings, error) {
	out, err := s.repo.LoadMessages(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return delivery.Settings{}, nil
	}
	return out, err
}

// SaveMessages validates and persists new settings.
func (s *Service) SaveMessages(ctx context.Context, in delivery.Settings) (delivery.Settings, error) {
	in = trim(in)
	if err := shared.ValidateStruct(in); err != nil {
		return delivery.Settings{}, err
	}
	for name, tmpl := range map[string]string{
		"report":         in.Templates.Report,
		"billing_notice": in.Templates.BillingNotice,
		"tax_invoice":    in.Templates.TaxInvoice,
	} {
		if unknown := unknownPlaceholders(tmpl); len(unknown) > 0 {
			return delivery.Settings{}, fmt.Errorf("%w: %s uses unknown placeholders %s",
				shared.ErrValidation, name, strings.Join(unknown, ", "))
		}
	}
	if err := s.repo.SaveMessages(ctx, in); err != nil {
		return delivery.Settings{}, err
	}
	s.invalidate(ctx)
	return withDefaults(in), nil
}

// ResetMessages drops the saved settings so the defaults apply again.
func (s *Service) ResetMessages(ctx context.Context) (delivery.Settings, error) {
	if err := s.repo.DeleteMessages(ctx); err != nil {
		return delivery.Settings{}, err
	}
	s.invalidate(ctx)
	return withDefaults(delivery.Settings{}), nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("settings cache bump", slog.Any("error", err))
	}
}

func withDefaults(in delivery.Settings) delivery.Settings {
	return in.Merge(delivery.Settings{Templates: delivery.DefaultTemplates()})
}

func trim(in delivery.Settings) delivery.Settings {
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.PixKey = strings.TrimSpace(in.PixKey)
	in.Templates.Report = strings.TrimSpace(in.Templates.Report)
	in.Templates.BillingNotice = strings.TrimSpace(in.Templates.BillingNotice)
	in.Templates.TaxInvoice = strings.TrimSpace(in.Templates.TaxInvoice)
	return in
}

func unknownPlaceholders(tmpl string) []string {
	var out []string
	for _, p := range placeholderPattern.FindAllString(tmpl, -1) {
		if !slices.Contains(delivery.Placeholders, p) && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

var _ delivery.SettingsSource = (*Service)(nil)
