package transfer

import (
	"context"
	"fmt"
	"sync"
)

// fakeProvider is an in-memory stand-in for the payment provider. Metadata
// updates follow the provider's merge semantics: only supplied keys change,
// empty values delete.
type fakeProvider struct {
	mu      sync.Mutex
	intents map[string]*PaymentIntent

	getErr    error
	updateErr error
	createErr error
	searchErr error
	listErr   error

	created []*CreateTransferRequest
	gets    int
	updates int
}

func newFakeProvider(intents ...*PaymentIntent) *fakeProvider {
	f := &fakeProvider{intents: make(map[string]*PaymentIntent)}
	for _, pi := range intents {
		f.put(pi)
	}
	return f
}

func (f *fakeProvider) put(pi *PaymentIntent) {
	if pi.Metadata == nil {
		pi.Metadata = map[string]string{}
	}
	f.intents[pi.ID] = pi
}

func (f *fakeProvider) intent(id string) *PaymentIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intents[id]
}

func copyIntent(pi *PaymentIntent) *PaymentIntent {
	out := *pi
	out.Metadata = make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

func (f *fakeProvider) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	pi, ok := f.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", id)
	}
	return copyIntent(pi), nil
}

func (f *fakeProvider) UpdateMetadata(ctx context.Context, id string, metadata map[string]string) (*PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	pi, ok := f.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", id)
	}
	for k, v := range metadata {
		if v == "" {
			delete(pi.Metadata, k)
			continue
		}
		pi.Metadata[k] = v
	}
	return copyIntent(pi), nil
}

func (f *fakeProvider) CreateTransfer(ctx context.Context, req *CreateTransferRequest) (*Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &Transfer{
		ID:          fmt.Sprintf("tr_%d", len(f.created)),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Destination: req.Destination,
	}, nil
}

func (f *fakeProvider) SearchPendingIntents(ctx context.Context, limit int) ([]*PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []*PaymentIntent
	for _, pi := range f.intents {
		if pi.TransferStatus() == StatusPending {
			out = append(out, copyIntent(pi))
		}
	}
	return out, nil
}

func (f *fakeProvider) ListIntents(ctx context.Context, limit int) ([]*PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*PaymentIntent
	for _, pi := range f.intents {
		out = append(out, copyIntent(pi))
	}
	return out, nil
}
