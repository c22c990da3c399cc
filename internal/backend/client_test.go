package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tiketloka-storefront/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, srv
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "ftp://example.com", "not a url", "http://"} {
		if _, err := New(Config{BaseURL: base}); err == nil {
			t.Fatalf("expected error for %q", base)
		}
	}
}

func TestCartDecodesLooseShapes(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cart" || r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, `{"data":[
			{"id":1,"quantity":"2","visit_date":"2026-02-01T00:00:00.000000Z","addons":"[10,\"11\",\"x\"]",
			 "destination":{"id":5,"name":"Kawah Putih","price":"100000.00","image":"storage/a.jpg",
			  "category":{"id":3,"name":"Alam"},
			  "addons":[{"id":10,"name":"Guide","price":20000},{"id":11,"name":"Jeep","price":"15000"},"junk"]}},
			{"id":"2","quantity":1,"visit_date":"2026-02-02","addons":null,
			 "destination":{"id":6,"name":"Museum","price":50000,"category":"Budaya"}},
			{"quantity":1},
			"not-an-object"
		]}`)
	})

	items, err := client.Cart(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Cart: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 decodable items, got %d: %+v", len(items), items)
	}

	first := items[0]
	if first.ID != 1 || first.Quantity != 2 || first.Destination.Price != 100000 {
		t.Fatalf("unexpected first item %+v", first)
	}
	if first.VisitDate.Format(domain.DateLayout) != "2026-02-01" {
		t.Fatalf("unexpected visit date %v", first.VisitDate)
	}
	if len(first.AddonIDs) != 2 || first.AddonIDs[0] != 10 || first.AddonIDs[1] != 11 {
		t.Fatalf("unexpected addon ids %v", first.AddonIDs)
	}
	if len(first.Destination.Addons) != 2 || first.Destination.Addons[1].Price != 15000 {
		t.Fatalf("unexpected available addons %+v", first.Destination.Addons)
	}
	if first.Destination.Category != "Alam" || first.Destination.ImageURL != "storage/a.jpg" {
		t.Fatalf("unexpected destination %+v", first.Destination)
	}

	second := items[1]
	if second.ID != 2 || second.Destination.Category != "Budaya" || len(second.AddonIDs) != 0 {
		t.Fatalf("unexpected second item %+v", second)
	}
}

func TestCartAcceptsBareArray(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":3,"quantity":1,"destination":{"id":1,"name":"A","price":1000}}]`)
	})
	items, err := client.Cart(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Cart: %v", err)
	}
	if len(items) != 1 || items[0].ID != 3 {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestUnauthorizedSignalsSessionExpiry(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Unauthenticated."}`)
	})
	var expired []string
	client.SetUnauthorizedHandler(func(token string) { expired = append(expired, token) })

	_, err := client.Me(context.Background(), "stale")
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Unauthenticated." {
		t.Fatalf("unexpected api error %#v", err)
	}
	if len(expired) != 1 || expired[0] != "stale" {
		t.Fatalf("expected expiry signal for stale token, got %v", expired)
	}

	// anonymous calls have no session to expire
	_, _ = client.Login(context.Background(), "a@b.c", "x")
	if len(expired) != 1 {
		t.Fatalf("anonymous 401 must not signal expiry, got %v", expired)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusForbidden, `{"message":"Forbidden"}`, domain.ErrUnauthorized},
		{http.StatusNotFound, ``, domain.ErrNotFound},
		{http.StatusConflict, `{}`, domain.ErrConflict},
		{http.StatusUnprocessableEntity, `{"message":"invalid","errors":{"cart_ids":["required"]}}`, domain.ErrValidation},
		{http.StatusBadRequest, `{"error":"bad"}`, domain.ErrValidation},
		{http.StatusInternalServerError, `<html>oops</html>`, domain.ErrNetwork},
		{http.StatusTooManyRequests, ``, domain.ErrNetwork},
	}
	for _, tc := range cases {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		})
		err := client.ClearCart(context.Background(), "tok")
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestValidationErrorCarriesFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message":"The email has already been taken.","errors":{"email":["The email has already been taken."],"phone_number":"required"}}`)
	})
	_, err := client.Register(context.Background(), RegisterInput{Email: "a@b.c"})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(vErr.Fields["email"]) != 1 || vErr.Fields["phone_number"][0] != "required" {
		t.Fatalf("unexpected fields %v", vErr.Fields)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Close()

	_, err = client.Cart(context.Background(), "tok")
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestCheckoutRequestShape(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/checkout" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") != "key-1" {
			t.Errorf("missing idempotency key")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		ids, _ := body["cart_ids"].([]any)
		if len(ids) != 2 || body["payment_method"] != "qris" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"message":"ok","booking_code":"BK123"}`)
	})

	code, err := client.Checkout(context.Background(), "tok", CheckoutInput{
		CartIDs:        []int64{1, 2},
		PaymentMethod:  domain.PaymentQRIS,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if code != "BK123" {
		t.Fatalf("unexpected booking code %q", code)
	}
}

func TestCheckoutWithoutBookingCodeIsAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":"ok"}`)
	})
	_, err := client.Checkout(context.Background(), "tok", CheckoutInput{CartIDs: []int64{1}, PaymentMethod: domain.PaymentBCA})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestLoginDecodesUser(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"access_token":"abc","token_type":"Bearer","user":{"id":"9","name":"Budi","email":"budi@example.com","role":"user","phone_number":"0813"}}`)
	})
	res, err := client.Login(context.Background(), "budi@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "abc" || res.User.ID != 9 || res.User.Role != domain.RoleCustomer {
		t.Fatalf("unexpected auth result %+v", res)
	}
}

func TestBookingDecodesTickets(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/bookings/BK123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"data":{"booking_code":"BK123","status":"pending","grand_total":"290000",
			"created_at":"2026-01-05T08:30:00.000000Z",
			"details":[{"ticket_code":"TK1","quantity":2,"visit_date":"2026-02-01","destination":{"name":"Kawah Putih"}},
			           {"quantity":1,"visit_date":"2026-02-02","destination":{"name":"Museum"}}]}}`)
	})
	b, err := client.Booking(context.Background(), "tok", "BK123")
	if err != nil {
		t.Fatalf("Booking: %v", err)
	}
	if b.GrandTotal != 290000 || len(b.Tickets) != 2 {
		t.Fatalf("unexpected booking %+v", b)
	}
	if b.Tickets[1].Code != "BK123" || b.Tickets[0].Destination != "Kawah Putih" {
		t.Fatalf("unexpected tickets %+v", b.Tickets)
	}
}

func TestParseFlexIntOutOfRangeIsZero(t *testing.T) {
	cases := map[string]int64{
		`12`:                    12,
		`"150000.00"`:           150000,
		`12.5`:                  13,
		`1e19`:                  0,
		`-1e19`:                 0,
		`"9999999999999999999"`: 0,
		`9223372036854775807`:   9223372036854775807,
		`1e400`:                 0,
		`"abc"`:                 0,
		`null`:                  0,
	}
	for in, want := range cases {
		if got := parseFlexInt([]byte(in)); got != want {
			t.Fatalf("parseFlexInt(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestAdminsEndpoints(t *testing.T) {
	var seen []string
	var created AdminInput
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-owner" {
			t.Errorf("missing owner bearer on %s %s", r.Method, r.URL.Path)
		}
		seen = append(seen, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"data":[{"id":"3","name":"Sari","email":"sari@example.com","phone_number":"0812"},{"name":"no id"}]}`)
		case http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&created)
			w.WriteHeader(http.StatusCreated)
		case http.MethodPut:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if _, ok := body["password"]; ok {
				t.Errorf("empty password must be omitted, got %v", body)
			}
		}
	})
	ctx := context.Background()

	list, err := client.Admins(ctx, "tok-owner")
	if err != nil {
		t.Fatalf("Admins: %v", err)
	}
	if len(list) != 1 || list[0].ID != 3 || list[0].PhoneNumber != "0812" {
		t.Fatalf("unexpected admins %+v", list)
	}
	if err := client.CreateAdmin(ctx, "tok-owner", AdminInput{Name: "Budi", Email: "budi@example.com", PhoneNumber: "0813", Password: "rahasia123"}); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if created.Email != "budi@example.com" || created.PhoneNumber != "0813" {
		t.Fatalf("unexpected create body %+v", created)
	}
	if err := client.UpdateAdmin(ctx, "tok-owner", 3, AdminInput{Name: "Sari W", Email: "sari@example.com"}); err != nil {
		t.Fatalf("UpdateAdmin: %v", err)
	}
	if err := client.DeleteAdmin(ctx, "tok-owner", 3); err != nil {
		t.Fatalf("DeleteAdmin: %v", err)
	}
	want := []string{"GET /api/owner/admins", "POST /api/owner/admins", "PUT /api/owner/admins/3", "DELETE /api/owner/admins/3"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected requests %v", seen)
	}
}

func TestAdminsForbiddenForNonOwner(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"owner only"}`)
	})
	if _, err := client.Admins(context.Background(), "tok-admin"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestAdminsEmptyList(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":null}`)
	})
	list, err := client.Admins(context.Background(), "tok-owner")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v %v", list, err)
	}
}
