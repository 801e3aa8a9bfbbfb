package crm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentDesk/internal/customer"
	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/tool"
)

func seed() []customer.Record {
	return []customer.Record{
		{ID: "c-1", Name: "Dana Levi", Email: "dana@acme.io", Company: "Acme", Status: customer.StatusLead},
		{ID: "c-2", Name: "Dana Levi", Email: "dana.levi@globex.com", Company: "Globex", Status: customer.StatusCustomer},
		{ID: "c-3", Name: "Yossi Cohen", Email: "yossi@initech.com", Company: "Initech", Phone: "03-5550000", Status: customer.StatusProspect, Notes: "met at expo"},
	}
}

func newAdapter(t *testing.T) (*Adapter, *customer.MemoryStore) {
	t.Helper()
	store := customer.NewMemoryStore(seed()...)
	return New(customer.NewResolver(store)), store
}

func prepare(t *testing.T, args map[string]any) tool.Call {
	t.Helper()
	set := tool.NewActiveSet(tool.MustDefault(), []tool.Integration{tool.IntegrationCRM})
	call, err := set.Prepare(string(tool.NameCRM), args)
	require.NoError(t, err)
	return call
}

func TestSearchListsAllMatches(t *testing.T) {
	a, _ := newAdapter(t)

	text, err := a.Invoke(context.Background(), prepare(t, map[string]any{"action": "search_customers", "name": "Dana Levi"}))
	require.NoError(t, err)
	assert.Contains(t, text, "Found 2 customers")
	assert.Contains(t, text, "ID: c-1")
	assert.Contains(t, text, "ID: c-2")
}

func TestSearchNoMatchIsNotFound(t *testing.T) {
	a, _ := newAdapter(t)

	_, err := a.Invoke(context.Background(), prepare(t, map[string]any{"action": "search_customers", "name": "Nobody"}))
	assert.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))
}

func TestUpdateAmbiguousName(t *testing.T) {
	a, store := newAdapter(t)

	_, err := a.Invoke(context.Background(), prepare(t, map[string]any{
		"action":         "update_customer",
		"name":           "Dana Levi",
		"data_to_update": map[string]any{"status": "churned"},
	}))
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeAmbiguousEntity, xerrors.CodeOf(err))

	var amb *customer.AmbiguityError
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Candidates, 2)

	for _, id := range []string{"c-1", "c-2"} {
		r, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.NotEqual(t, customer.StatusChurned, r.Status)
	}
}

func TestUpdateByNameChangesOnlyPatchedField(t *testing.T) {
	a, store := newAdapter(t)
	before, err := store.Get(context.Background(), "c-3")
	require.NoError(t, err)

	text, err := a.Invoke(context.Background(), prepare(t, map[string]any{
		"action":         "update_customer",
		"name":           "Yossi Cohen",
		"data_to_update": map[string]any{"phone": "050-1234567"},
	}))
	require.NoError(t, err)
	assert.Contains(t, text, "Yossi Cohen")

	after, err := store.Get(context.Background(), "c-3")
	require.NoError(t, err)
	assert.Equal(t, "050-1234567", after.Phone)
	assert.Equal(t, before.Email, after.Email)
	assert.Equal(t, before.Company, after.Company)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.Notes, after.Notes)
}

func TestUpdateByNameAndCompanyPicksOneRecord(t *testing.T) {
	a, store := newAdapter(t)

	text, err := a.Invoke(context.Background(), prepare(t, map[string]any{
		"action":         "update_customer",
		"name":           "Dana Levi",
		"company":        "Globex",
		"data_to_update": map[string]any{"phone": "1"},
	}))
	require.NoError(t, err)
	assert.Contains(t, text, "c-2")

	updated, err := store.Get(context.Background(), "c-2")
	require.NoError(t, err)
	assert.Equal(t, "1", updated.Phone)
	untouched, err := store.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Empty(t, untouched.Phone)
}

func TestDeleteByCompanyOrPhone(t *testing.T) {
	a, store := newAdapter(t)

	text, err := a.Invoke(context.Background(), prepare(t, map[string]any{"action": "delete_customer", "company": "Globex"}))
	require.NoError(t, err)
	assert.Contains(t, text, "c-2")
	_, err = store.Get(context.Background(), "c-2")
	assert.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))

	text, err = a.Invoke(context.Background(), prepare(t, map[string]any{"action": "delete_customer", "phone": "03-5550000"}))
	require.NoError(t, err)
	assert.Contains(t, text, "Yossi Cohen")

	_, err = a.Invoke(context.Background(), prepare(t, map[string]any{"action": "delete_customer", "status": "churned"}))
	assert.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))
}

func TestGetUnknownIDIsSuccessText(t *testing.T) {
	a, _ := newAdapter(t)

	text, err := a.Invoke(context.Background(), prepare(t, map[string]any{"action": "get_customer_by_id", "customer_id": "missing"}))
	require.NoError(t, err)
	assert.Equal(t, "No customer found with id missing.", text)
}

func TestCreateDefaultsToLead(t *testing.T) {
	a, store := newAdapter(t)

	text, err := a.Invoke(context.Background(), prepare(t, map[string]any{
		"action": "create_customer", "name": "Noa Katz", "email": "noa@umbrella.com", "company": "Umbrella",
	}))
	require.NoError(t, err)
	assert.Contains(t, text, "New customer created")

	recs, err := store.Find(context.Background(), customer.Filter{Email: "noa@umbrella.com"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, customer.StatusLead, recs[0].Status)
}

func TestDeleteByIDAndRecent(t *testing.T) {
	a, store := newAdapter(t)

	text, err := a.Invoke(context.Background(), prepare(t, map[string]any{"action": "delete_customer", "customer_id": "c-3"}))
	require.NoError(t, err)
	assert.Contains(t, text, "deleted")

	_, err = store.Get(context.Background(), "c-3")
	assert.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))

	text, err = a.Invoke(context.Background(), prepare(t, map[string]any{"action": "list_recent_customers"}))
	require.NoError(t, err)
	assert.Contains(t, text, "The 2 most recently updated customers")
}

func TestRecentEmptyStore(t *testing.T) {
	a := New(customer.NewResolver(customer.NewMemoryStore()))

	text, err := a.Invoke(context.Background(), prepare(t, map[string]any{"action": "list_recent_customers"}))
	require.NoError(t, err)
	assert.Equal(t, "There are no customers in the system yet.", text)
}
