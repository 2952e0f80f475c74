package delivery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Templates holds the message bodies. Placeholders use the {name} form.
type Templates struct {
	Report        string `json:"report" validate:"max=10000"`
	BillingNotice string `json:"billing_notice" validate:"max=10000"`
	TaxInvoice    string `json:"tax_invoice" validate:"max=10000"`
}

// Placeholders lists the names templates may reference.
var Placeholders = []string{
	"{nome_responsavel}", "{empresa_cliente}", "{mes}", "{ano}", "{total_marmitas}",
	"{valor_total}", "{pix_chave}", "{data_vencimento}", "{empresa}",
}

// Settings are the operator-editable parts of outbound messages. Empty fields
// fall back to the composer configuration.
type Settings struct {
	BusinessName string    `json:"business_name" validate:"max=120"`
	PixKey       string    `json:"pix_key" validate:"max=140"`
	Templates    Templates `json:"templates"`
}

// Merge returns s with its empty fields taken from fallback.
func (s Settings) Merge(fallback Settings) Settings {
	out := s
	if strings.TrimSpace(out.BusinessName) == "" {
		out.BusinessName = fallback.BusinessName
	}
	if strings.TrimSpace(out.PixKey) == "" {
		out.PixKey = fallback.PixKey
	}
	if strings.TrimSpace(out.Templates.Report) == "" {
		out.Templates.Report = fallback.Templates.Report
	}
	if strings.TrimSpace(out.Templates.BillingNotice) == "" {
		out.Templates.BillingNotice = fallback.Templates.BillingNotice
	}
	if strings.TrimSpace(out.Templates.TaxInvoice) == "" {
		out.Templates.TaxInvoice = fallback.Templates.TaxInvoice
	}
	return out
}

// SettingsSource loads the stored message settings.
type SettingsSource interface {
	MessageSettings(ctx context.Context) (Settings, error)
}

// DefaultTemplates returns the stock Portuguese templates.
func DefaultTemplates() Templates {
	return Templates{
		Report: `Olá {nome_responsavel},

Segue em anexo o relatório de consumo de marmitas do mês {mes}/{ano}.

Resumo:
- Total de marmitas: {total_marmitas}
- Valor total: {valor_total}

Atenciosamente,
{empresa}`,
		BillingNotice: `Olá {nome_responsavel},

Segue a cobrança referente ao consumo de marmitas do mês {mes}/{ano}.

Valor total: {valor_total}
Vencimento: {data_vencimento}

Para pagamento via PIX, utilize a chave: {pix_chave}

Atenciosamente,
{empresa}`,
		TaxInvoice: `Olá {nome_responsavel},

Segue a nota fiscal referente ao consumo de marmitas do mês {mes}/{ano}.

Total de marmitas: {total_marmitas}
Valor total: {valor_total}

Atenciosamente,
{empresa}`,
	}
}

// ComposerConfig configures a Composer.
type ComposerConfig struct {
	BusinessName string
	PixKey       string
	// DueDay is the day of the month after the closure when payment is due.
	DueDay    int
	Templates Templates
	// Source, when set, is read on every compose so edits apply to the next send.
	Source SettingsSource
}

// Composer renders envelopes for closures.
type Composer struct {
	cfg     ComposerConfig
	printer *message.Printer
}

// NewComposer builds a Composer formatting numbers in Brazilian Portuguese.
func NewComposer(cfg ComposerConfig) *Composer {
	if cfg.BusinessName == "" {
		cfg.BusinessName = "Unaí Marmitas"
	}
	if cfg.DueDay <= 0 || cfg.DueDay > 28 {
		cfg.DueDay = 10
	}
	cfg.Templates = Settings{Templates: cfg.Templates}.Merge(Settings{Templates: DefaultTemplates()}).Templates
	return &Composer{cfg: cfg, printer: message.NewPrinter(language.BrazilianPortuguese)}
}

// Compose renders the envelope for kind. A missing e-mail yields ErrNoRecipient.
func (c *Composer) Compose(ctx context.Context, kind Kind, s Summary) (Envelope, error) {
	msg, err := c.settings(ctx)
	if err != nil {
		return Envelope{}, err
	}
	var tmpl, subject string
	period := fmt.Sprintf("%02d/%d", s.Month, s.Year)
	switch kind {
	case KindReport:
		tmpl, subject = msg.Templates.Report, "Relatório de consumo "+period
	case KindBillingNotice:
		tmpl, subject = msg.Templates.BillingNotice, "Cobrança "+period
	case KindTaxInvoice:
		tmpl, subject = msg.Templates.TaxInvoice, "Nota fiscal "+period
	default:
		return Envelope{}, fmt.Errorf("delivery: unknown document kind %q", kind)
	}
	if strings.TrimSpace(s.Email) == "" {
		return Envelope{}, ErrNoRecipient
	}
	return Envelope{
		Kind:      kind,
		ClosureID: s.ClosureID,
		SendID:    s.SendID,
		CompanyID: s.CompanyID,
		Recipient: strings.TrimSpace(s.Email),
		Subject:   fmt.Sprintf("%s - %s", msg.BusinessName, subject),
		Body:      c.render(tmpl, s, msg),
	}, nil
}

// settings overlays the stored settings on the configured ones.
func (c *Composer) settings(ctx context.Context) (Settings, error) {
	base := Settings{BusinessName: c.cfg.BusinessName, PixKey: c.cfg.PixKey, Templates: c.cfg.Templates}
	if c.cfg.Source == nil {
		return base, nil
	}
	stored, err := c.cfg.Source.MessageSettings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("delivery: load message settings: %w", err)
	}
	return stored.Merge(base), nil
}

func (c *Composer) render(tmpl string, s Summary, msg Settings) string {
	r := strings.NewReplacer(
		"{nome_responsavel}", s.Responsible,
		"{empresa_cliente}", s.CompanyName,
		"{mes}", fmt.Sprintf("%02d", s.Month),
		"{ano}", strconv.Itoa(s.Year),
		"{total_marmitas}", c.printer.Sprintf("%d", s.TotalMeals),
		"{valor_total}", c.Money(s.TotalValue.InexactFloat64()),
		"{pix_chave}", msg.PixKey,
		"{data_vencimento}", c.DueDate(s.Month, s.Year).Format("02/01/2006"),
		"{empresa}", msg.BusinessName,
	)
	return r.Replace(tmpl)
}

// Money formats v as Brazilian reais.
func (c *Composer) Money(v float64) string {
	return c.printer.Sprintf("R$ %.2f", v)
}

// DueDate is the configured day of the month following the closure.
func (c *Composer) DueDate(month, year int) time.Time {
	return time.Date(year, time.Month(month)+1, c.cfg.DueDay, 0, 0, 0, 0, time.UTC)
}
