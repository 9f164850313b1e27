package pairing

import (
	"context"
	"sync"
	"time"

	"github.com/docpair/internal/store"
)

// memoryStore mimics the transactional semantics of the Postgres store
// under a single mutex, including the conditional-update conflict rules.
type memoryStore struct {
	mu      sync.Mutex
	docs    map[string]*store.Document
	lines   map[string][]store.LineItem
	cadence map[string]*store.CadenceStats
	events  []store.PairingEvent
	audit   []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		docs:    make(map[string]*store.Document),
		lines:   make(map[string][]store.LineItem),
		cadence: make(map[string]*store.CadenceStats),
	}
}

func (m *memoryStore) addDoc(doc store.Document, lines ...store.LineItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.PairingStatus == "" && doc.DocType == store.DocTypeInvoice {
		doc.PairingStatus = store.StatusUnpaired
	}
	if doc.Status == "" {
		doc.Status = store.DocStatusParsed
	}
	m.docs[doc.ID] = &doc
	m.lines[doc.ID] = lines
}

func (m *memoryStore) Document(ctx context.Context, id string) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, store.NotFoundf("document %s", id)
	}
	cp := *doc
	return &cp, nil
}

func (m *memoryStore) LineItems(ctx context.Context, documentID string) ([]store.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines[documentID], nil
}

func (m *memoryStore) DeliveryNoteCandidates(ctx context.Context, invoiceID, supplierID string, around time.Time, windowDays int) ([]*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Document
	for _, doc := range m.docs {
		if doc.DocType != store.DocTypeDeliveryNote || doc.SupplierID == nil || doc.DocDate == nil {
			continue
		}
		if *doc.SupplierID != supplierID {
			continue
		}
		if doc.InvoiceID != nil && *doc.InvoiceID != invoiceID {
			continue
		}
		delta := doc.DocDate.Sub(around).Hours() / 24
		if delta < 0 {
			delta = -delta
		}
		if int(delta) > windowDays {
			continue
		}
		cp := *doc
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryStore) Cadence(ctx context.Context, supplierID, venueID string) (*store.CadenceStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cadence[supplierID+"/"+venueID], nil
}

func (m *memoryStore) Link(ctx context.Context, params store.LinkParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dn, ok := m.docs[params.DeliveryNoteID]
	if !ok || dn.DocType != store.DocTypeDeliveryNote {
		return store.NotFoundf("delivery note %s", params.DeliveryNoteID)
	}
	inv, ok := m.docs[params.InvoiceID]
	if !ok || inv.DocType != store.DocTypeInvoice {
		return store.NotFoundf("invoice %s", params.InvoiceID)
	}

	if params.PreviousDeliveryNoteID != nil && *params.PreviousDeliveryNoteID != params.DeliveryNoteID {
		if prev, ok := m.docs[*params.PreviousDeliveryNoteID]; ok &&
			prev.InvoiceID != nil && *prev.InvoiceID == params.InvoiceID {
			prev.InvoiceID = nil
		}
	}

	if dn.InvoiceID != nil && *dn.InvoiceID != params.InvoiceID {
		return store.Conflictf("delivery note %s is linked to another invoice", params.DeliveryNoteID)
	}
	if inv.DeliveryNoteID != nil && *inv.DeliveryNoteID != params.DeliveryNoteID {
		if params.PreviousDeliveryNoteID == nil || *params.PreviousDeliveryNoteID != *inv.DeliveryNoteID {
			return store.Conflictf("invoice %s is linked to another delivery note", params.InvoiceID)
		}
	}

	invID := params.InvoiceID
	dnID := params.DeliveryNoteID
	dn.InvoiceID = &invID
	inv.DeliveryNoteID = &dnID
	inv.PairingStatus = params.Status
	conf := params.Confidence
	inv.PairingConfidence = &conf
	mv := params.ModelVersion
	inv.PairingModelVersion = &mv

	m.appendEventLocked(params.InvoiceID, &dnID, params.PreviousDeliveryNoteID, params.Event)
	return nil
}

func (m *memoryStore) Clear(ctx context.Context, params store.ClearParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.docs[params.InvoiceID]
	if !ok || inv.DocType != store.DocTypeInvoice {
		return store.NotFoundf("invoice %s", params.InvoiceID)
	}
	inv.DeliveryNoteID = nil
	inv.PairingStatus = store.StatusUnpaired
	inv.PairingConfidence = nil
	inv.PairingModelVersion = nil

	if params.DeliveryNoteID != nil {
		if dn, ok := m.docs[*params.DeliveryNoteID]; ok &&
			dn.InvoiceID != nil && *dn.InvoiceID == params.InvoiceID {
			dn.InvoiceID = nil
		}
	}

	m.appendEventLocked(params.InvoiceID, nil, params.DeliveryNoteID, params.Event)
	return nil
}

func (m *memoryStore) Suggest(ctx context.Context, params store.SuggestParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.docs[params.InvoiceID]
	if !ok || inv.DocType != store.DocTypeInvoice {
		return store.NotFoundf("invoice %s", params.InvoiceID)
	}
	if inv.DeliveryNoteID != nil {
		return store.Conflictf("invoice %s is already paired", params.InvoiceID)
	}
	inv.PairingStatus = params.Status
	inv.PairingConfidence = params.Confidence

	if params.Event != nil {
		m.appendEventLocked(params.InvoiceID, nil, nil, *params.Event)
	}
	return nil
}

func (m *memoryStore) SetDocumentStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return store.NotFoundf("document %s", id)
	}
	doc.Status = status
	return nil
}

func (m *memoryStore) EventsForInvoice(ctx context.Context, invoiceID string) ([]store.PairingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.PairingEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].InvoiceID == invoiceID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *memoryStore) InvoiceIDsByStatus(ctx context.Context, statuses []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, doc := range m.docs {
		if doc.DocType != store.DocTypeInvoice {
			continue
		}
		for _, st := range statuses {
			if doc.PairingStatus == st {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (m *memoryStore) ExistingInvoiceIDs(ctx context.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range ids {
		if doc, ok := m.docs[id]; ok && doc.DocType == store.DocTypeInvoice {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memoryStore) AppendAudit(ctx context.Context, actor, action, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, actor+" "+action+" "+detail)
	return nil
}

func (m *memoryStore) appendEventLocked(invoiceID string, deliveryNoteID, previousID *string, ev store.EventRecord) {
	m.events = append(m.events, store.PairingEvent{
		ID:                     int64(len(m.events) + 1),
		Timestamp:              time.Now(),
		InvoiceID:              invoiceID,
		DeliveryNoteID:         deliveryNoteID,
		PreviousDeliveryNoteID: previousID,
		Action:                 ev.Action,
		ActorType:              ev.ActorType,
		UserID:                 ev.UserID,
		FeatureVectorJSON:      ev.FeatureVectorJSON,
		ModelVersion:           ev.ModelVersion,
	})
}
