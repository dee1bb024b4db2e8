// Command mock-upstream simulates a legacy API whose response schema can
// drift. It serves the demo user/product/order endpoints in one of three
// modes: stable (the expected schema), drifted (renamed fields), or chaotic
// (randomly one or the other per request). Switch modes at runtime via
// POST /mode to exercise the gateway's healing path.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type mode string

const (
	modeStable  mode = "stable"
	modeDrifted mode = "drifted"
	modeChaotic mode = "chaotic"
)

func validMode(m mode) bool {
	return m == modeStable || m == modeDrifted || m == modeChaotic
}

var usersStable = []map[string]any{
	{"user_id": 1, "name": "Alice Johnson", "email": "alice@example.com", "created_at": "2024-01-15T10:30:00Z"},
	{"user_id": 2, "name": "Bob Smith", "email": "bob@example.com", "created_at": "2024-02-20T14:45:00Z"},
	{"user_id": 3, "name": "Charlie Brown", "email": "charlie@example.com", "created_at": "2024-03-10T09:15:00Z"},
}

var usersDrifted = []map[string]any{
	{"uid": 1, "full_name": "Alice Johnson", "email_address": "alice@example.com", "registered_date": "2024-01-15T10:30:00Z"},
	{"uid": 2, "full_name": "Bob Smith", "email_address": "bob@example.com", "registered_date": "2024-02-20T14:45:00Z"},
	{"uid": 3, "full_name": "Charlie Brown", "email_address": "charlie@example.com", "registered_date": "2024-03-10T09:15:00Z"},
}

var productsStable = []map[string]any{
	{"product_id": 101, "title": "Wireless Headphones", "price": 79.99, "in_stock": true},
	{"product_id": 102, "title": "USB-C Hub", "price": 49.99, "in_stock": true},
	{"product_id": 103, "title": "Mechanical Keyboard", "price": 149.99, "in_stock": false},
}

var productsDrifted = []map[string]any{
	{"id": 101, "product_name": "Wireless Headphones", "cost": 79.99, "available": true},
	{"id": 102, "product_name": "USB-C Hub", "cost": 49.99, "available": true},
	{"id": 103, "product_name": "Mechanical Keyboard", "cost": 149.99, "available": false},
}

var ordersStable = []map[string]any{
	{"order_id": 1001, "user_id": 1, "total_amount": 129.98, "status": "completed"},
	{"order_id": 1002, "user_id": 2, "total_amount": 49.99, "status": "pending"},
	{"order_id": 1003, "user_id": 1, "total_amount": 149.99, "status": "shipped"},
}

var ordersDrifted = []map[string]any{
	{"orderId": 1001, "customerId": 1, "totalPrice": 129.98, "orderStatus": "completed"},
	{"orderId": 1002, "customerId": 2, "totalPrice": 49.99, "orderStatus": "pending"},
	{"orderId": 1003, "customerId": 1, "totalPrice": 149.99, "orderStatus": "shipped"},
}

type upstream struct {
	mu   sync.Mutex
	mode mode
}

func (u *upstream) setMode(m mode) {
	u.mu.Lock()
	u.mode = m
	u.mu.Unlock()
}

func (u *upstream) currentMode() mode {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.mode
}

// effectiveMode resolves chaotic to a coin flip per request.
func (u *upstream) effectiveMode() mode {
	m := u.currentMode()
	if m == modeChaotic {
		if rand.Intn(2) == 0 {
			return modeStable
		}
		return modeDrifted
	}
	return m
}

func (u *upstream) pick(stable, drifted []map[string]any) []map[string]any {
	if u.effectiveMode() == modeDrifted {
		return drifted
	}
	return stable
}

func findByID(items []map[string]any, idField string, id int) map[string]any {
	for _, item := range items {
		if n, ok := item[idField].(int); ok && n == id {
			return item
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (u *upstream) idField(stable, drifted string) string {
	if u.effectiveMode() == modeDrifted {
		return drifted
	}
	return stable
}

func (u *upstream) routes(logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":         "Mock Legacy API",
			"version":      "1.0.0",
			"current_mode": u.currentMode(),
		})
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "mode": u.currentMode()})
	})

	r.Get("/mode", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"mode": u.currentMode()})
	})

	r.Post("/mode", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Mode mode `json:"mode"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || !validMode(body.Mode) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "mode must be stable, drifted, or chaotic"})
			return
		}
		u.setMode(body.Mode)
		logger.Info("mode changed", slog.String("mode", string(body.Mode)))
		writeJSON(w, http.StatusOK, map[string]any{
			"mode":    body.Mode,
			"message": fmt.Sprintf("Mode set to %s", body.Mode),
		})
	})

	r.Get("/api/users", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, u.pick(usersStable, usersDrifted))
	})

	r.Get("/api/users/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, _ := strconv.Atoi(chi.URLParam(req, "id"))
		// Resolve the mode once so the fixture and ID field agree.
		drifted := u.effectiveMode() == modeDrifted
		users, field := usersStable, "user_id"
		if drifted {
			users, field = usersDrifted, "uid"
		}
		if user := findByID(users, field, id); user != nil {
			writeJSON(w, http.StatusOK, user)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found"})
	})

	r.Get("/api/user", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, u.pick(usersStable, usersDrifted)[0])
	})

	r.Get("/api/profile", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, u.pick(usersStable, usersDrifted)[0])
	})

	r.Get("/api/products", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, u.pick(productsStable, productsDrifted))
	})

	r.Get("/api/products/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, _ := strconv.Atoi(chi.URLParam(req, "id"))
		drifted := u.effectiveMode() == modeDrifted
		products, field := productsStable, "product_id"
		if drifted {
			products, field = productsDrifted, "id"
		}
		if product := findByID(products, field, id); product != nil {
			writeJSON(w, http.StatusOK, product)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Product not found"})
	})

	r.Get("/api/orders", func(w http.ResponseWriter, req *http.Request) {
		drifted := u.effectiveMode() == modeDrifted
		orders, userField := ordersStable, "user_id"
		if drifted {
			orders, userField = ordersDrifted, "customerId"
		}
		if raw := req.URL.Query().Get("user_id"); raw != "" {
			userID, _ := strconv.Atoi(raw)
			filtered := make([]map[string]any, 0, len(orders))
			for _, o := range orders {
				if n, ok := o[userField].(int); ok && n == userID {
					filtered = append(filtered, o)
				}
			}
			orders = filtered
		}
		writeJSON(w, http.StatusOK, orders)
	})

	r.Get("/api/orders/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, _ := strconv.Atoi(chi.URLParam(req, "id"))
		drifted := u.effectiveMode() == modeDrifted
		orders, field := ordersStable, "order_id"
		if drifted {
			orders, field = ordersDrifted, "orderId"
		}
		if order := findByID(orders, field, id); order != nil {
			writeJSON(w, http.StatusOK, order)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Order not found"})
	})

	return r
}

func main() {
	port := flag.Int("port", 8001, "listen port")
	startMode := flag.String("mode", "stable", "initial schema mode (stable, drifted, chaotic)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	u := &upstream{mode: mode(*startMode)}
	if !validMode(u.mode) {
		log.Fatalf("invalid mode %q", *startMode)
	}

	logger.Info("starting mock upstream",
		slog.Int("port", *port),
		slog.String("mode", string(u.mode)),
	)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", *port), u.routes(logger)); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
