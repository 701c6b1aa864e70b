package intake

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/ghl"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
)

// CRM receives qualified contact data.
type CRM interface {
	UpsertContact(ctx context.Context, contact ghl.Contact) (string, error)
	AddNote(ctx context.Context, contactID, body string) error
}

var defaultCRMTags = []string{"WhatsApp Bot", "EviDenS Clinic"}

// splitName splits on the first space; the remainder is the last name.
func splitName(full string) (first, last string) {
	parts := strings.Split(strings.TrimSpace(full), " ")
	first = parts[0]
	if len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}

func buildContact(patient *store.Patient, ctx store.Context, tags []string) ghl.Contact {
	first, last := splitName(patient.Name)
	custom := map[string]string{}
	for field, key := range map[string]string{
		"concern":          store.KeyConcern,
		"preferred_doctor": store.KeyDoctor,
		"preferred_period": store.KeyPreferredPeriod,
	} {
		if v := ctx.Get(key); v != "" {
			custom[field] = v
		}
	}
	return ghl.Contact{
		FirstName:    first,
		LastName:     last,
		Phone:        patient.Phone,
		Tags:         append([]string(nil), tags...),
		CustomFields: custom,
	}
}

// CRMNote is the note attached to the contact after each synced turn.
func CRMNote(ctx store.Context) string {
	return fmt.Sprintf("Conversa via WhatsApp Bot:\n- Necessidade: %s\n- Médico: %s\n- Horário preferido: %s",
		orDefault(ctx.Get(store.KeyConcern), "N/A"),
		orDefault(ctx.Get(store.KeyDoctor), "N/A"),
		orDefault(ctx.Get(store.KeyPreferredPeriod), "N/A"),
	)
}

// syncCRM is best effort; failures are logged and never reach the patient.
func (o *Orchestrator) syncCRM(ctx context.Context, patient *store.Patient, convCtx store.Context) {
	if o.crm == nil || strings.TrimSpace(patient.Name) == "" {
		return
	}
	contactID, err := o.crm.UpsertContact(ctx, buildContact(patient, convCtx, o.cfg.CRMTags))
	if err != nil {
		o.logger.Warn("crm contact upsert failed", "patient_id", patient.ID, "error", err)
		return
	}
	if contactID == "" {
		return
	}
	if err := o.crm.AddNote(ctx, contactID, CRMNote(convCtx)); err != nil {
		o.logger.Warn("crm note failed", "patient_id", patient.ID, "contact_id", contactID, "error", err)
		return
	}
	o.logger.Info("crm synced", "patient_id", patient.ID, "contact_id", contactID)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
