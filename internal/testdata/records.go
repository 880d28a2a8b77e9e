// File: internal/testdata/records.go
package testdata

import (
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	firstNames = []string{"John", "Jane", "Michael", "Sarah", "David", "Emily", "James", "Emma", "Robert", "Olivia", "William", "Ava", "Richard", "Sophia", "Joseph"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Wilson", "Anderson", "Thomas"}
	cities     = []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia", "San Antonio", "San Diego", "Dallas", "San Jose"}
	states     = []string{"NY", "CA", "IL", "TX", "AZ", "PA", "FL", "OH", "GA", "NC"}
	categories = []string{"Electronics", "Clothing", "Books", "Home & Garden", "Sports & Outdoors", "Toys", "Automotive", "Health & Beauty", "Food & Beverage", "Office"}
	adjectives = []string{"Premium", "Professional", "Deluxe", "Ultra", "Smart", "Advanced", "Classic", "Modern", "Eco-Friendly", "Wireless"}
	nouns      = []string{"Laptop", "Phone", "Tablet", "Watch", "Camera", "Speaker", "Headphones", "Keyboard", "Mouse", "Monitor"}
	domains    = []string{"gmail.com", "yahoo.com", "outlook.com", "company.com"}
	streets    = []string{"Main", "Oak", "Maple", "Elm", "Pine"}
)

// faker draws every random value of one generation call from a single seeded source.
type faker struct {
	src *rand.ChaCha8
	rnd *rand.Rand
	now time.Time
}

func (f *faker) pick(list []string) string { return list[f.rnd.IntN(len(list))] }

func (f *faker) pickN(list []string, n int) []string {
	shuffled := append([]string(nil), list...)
	f.rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:min(n, len(shuffled))]
}

func (f *faker) uuid() string {
	id, err := uuid.NewRandomFromReader(f.src)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (f *faker) chance(p float64) bool { return f.rnd.Float64() < p }

// money rounds a random amount in [lo, lo+span) to cents.
func (f *faker) money(lo, span float64) float64 {
	return round2(f.rnd.Float64()*span + lo)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (f *faker) dateBetween(start, end time.Time) string {
	if !end.After(start) {
		return start.UTC().Format(time.RFC3339Nano)
	}
	d := time.Duration(f.rnd.Int64N(int64(end.Sub(start))))
	return start.Add(d).UTC().Format(time.RFC3339Nano)
}

func (f *faker) phone() string {
	return "+1" + strconv.FormatInt(1_000_000_000+f.rnd.Int64N(9_000_000_000), 10)
}

func (f *faker) zip() string { return strconv.Itoa(10000 + f.rnd.IntN(90000)) }

func (f *faker) email(i int) string {
	suffix := ""
	if i > 0 {
		suffix = strconv.Itoa(i)
	}
	return fmt.Sprintf("%s.%s%s@%s", strings.ToLower(f.pick(firstNames)), strings.ToLower(f.pick(lastNames)), suffix, f.pick(domains))
}

func year(y int) time.Time { return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC) }

func (f *faker) user(i int) map[string]any {
	first, last := f.pick(firstNames), f.pick(lastNames)
	suffix := ""
	if i > 0 {
		suffix = strconv.Itoa(i)
	}
	return map[string]any{
		"id":          f.uuid(),
		"firstName":   first,
		"lastName":    last,
		"email":       fmt.Sprintf("%s.%s%s@%s", strings.ToLower(first), strings.ToLower(last), suffix, f.pick(domains)),
		"username":    fmt.Sprintf("%s%s%d", strings.ToLower(first), strings.ToLower(last), f.rnd.IntN(1000)),
		"phone":       f.phone(),
		"dateOfBirth": f.dateBetween(year(1960), year(2006)),
		"age":         18 + f.rnd.IntN(50),
		"address": map[string]any{
			"street":  fmt.Sprintf("%d %s %s", 1+f.rnd.IntN(9999), f.pick(streets), f.pick([]string{"St", "Ave", "Blvd", "Dr"})),
			"city":    f.pick(cities),
			"state":   f.pick(states),
			"zipCode": f.zip(),
			"country": "USA",
		},
		"role":          f.pick([]string{"admin", "user", "guest", "moderator"}),
		"status":        f.pick([]string{"active", "inactive", "pending", "suspended"}),
		"emailVerified": f.chance(0.7),
		"preferences": map[string]any{
			"newsletter":    f.chance(0.5),
			"notifications": f.chance(0.7),
			"theme":         f.pick([]string{"light", "dark", "auto"}),
		},
		"createdAt": f.dateBetween(year(2020), f.now),
		"lastLogin": f.dateBetween(year(2024), f.now),
	}
}

func (f *faker) product(i int) map[string]any {
	adj, noun := f.pick(adjectives), f.pick(nouns)
	price := f.money(10, 1000)
	image := func(offset int) string { return fmt.Sprintf("https://picsum.photos/400/400?random=%d", i+offset) }
	return map[string]any{
		"id":            f.uuid(),
		"name":          adj + " " + noun,
		"description":   fmt.Sprintf("High-quality %s %s with excellent features and performance", strings.ToLower(adj), strings.ToLower(noun)),
		"category":      f.pick(categories),
		"subCategory":   f.pick([]string{"Featured", "New Arrivals", "Best Sellers", "Clearance"}),
		"price":         price,
		"originalPrice": round2(price * (1 + f.rnd.Float64()*0.3)),
		"currency":      "USD",
		"sku":           fmt.Sprintf("SKU-%06d", i+1000),
		"barcode":       strconv.FormatInt(1_000_000_000_000+f.rnd.Int64N(9_000_000_000_000), 10),
		"stock":         f.rnd.IntN(200),
		"rating":        math.Round((f.rnd.Float64()*2+3)*10) / 10,
		"reviewCount":   f.rnd.IntN(500),
		"imageUrl":      image(0),
		"images":        []string{image(0), image(1000), image(2000)},
		"tags":          f.pickN([]string{"new", "sale", "featured", "bestseller", "trending", "limited"}, 1+f.rnd.IntN(3)),
		"dimensions": map[string]any{
			"width":  5 + f.rnd.IntN(50),
			"height": 5 + f.rnd.IntN(50),
			"depth":  5 + f.rnd.IntN(50),
			"unit":   "cm",
		},
		"weight":     f.money(0.1, 10),
		"weightUnit": "kg",
		"isActive":   f.chance(0.9),
		"isFeatured": f.chance(0.3),
		"createdAt":  f.dateBetween(year(2023), f.now),
		"updatedAt":  f.dateBetween(year(2024), f.now),
	}
}

func (f *faker) order(i int) map[string]any {
	n := 1 + f.rnd.IntN(5)
	items := make([]map[string]any, 0, n)
	var subtotal float64
	for range n {
		qty := 1 + f.rnd.IntN(5)
		price := f.money(10, 200)
		items = append(items, map[string]any{
			"productId":   f.uuid(),
			"productName": f.pick(adjectives) + " " + f.pick(nouns),
			"quantity":    qty,
			"price":       price,
			"subtotal":    round2(float64(qty) * price),
		})
		subtotal += float64(qty) * price
	}
	tax := round2(subtotal * 0.08)
	shipping := f.money(5, 20)

	placed := f.now.Add(-time.Duration(f.rnd.Int64N(int64(30 * 24 * time.Hour))))
	status := f.pick([]string{"pending", "confirmed", "processing", "shipped", "delivered", "cancelled"})
	after := func(window time.Duration) string {
		return placed.Add(time.Duration(f.rnd.Int64N(int64(window)))).UTC().Format(time.RFC3339Nano)
	}
	var tracking, confirmedAt, shippedAt, deliveredAt, notes any
	switch status {
	case "delivered":
		deliveredAt = after(7 * 24 * time.Hour)
		fallthrough
	case "shipped":
		tracking = fmt.Sprintf("TRK-%d", 1_000_000_000+f.rnd.Int64N(9_000_000_000))
		shippedAt = after(48 * time.Hour)
		fallthrough
	case "confirmed", "processing":
		confirmedAt = after(24 * time.Hour)
	}
	if f.chance(0.3) {
		notes = "Please handle with care"
	}

	address := func(street string) map[string]any {
		return map[string]any{
			"fullName": f.pick(firstNames) + " " + f.pick(lastNames),
			"street":   fmt.Sprintf("%d %s", 1+f.rnd.IntN(9999), street),
			"city":     f.pick(cities),
			"state":    f.pick(states),
			"zipCode":  f.zip(),
			"country":  "USA",
		}
	}
	shippingAddress := address("Shipping Lane")
	shippingAddress["phone"] = f.phone()

	return map[string]any{
		"id":              f.uuid(),
		"orderNumber":     fmt.Sprintf("ORD-%08d", i+10000),
		"userId":          f.uuid(),
		"items":           items,
		"subtotal":        round2(subtotal),
		"tax":             tax,
		"shipping":        shipping,
		"totalAmount":     round2(subtotal + tax + shipping),
		"currency":        "USD",
		"status":          status,
		"paymentMethod":   f.pick([]string{"credit_card", "debit_card", "paypal", "bank_transfer", "cash_on_delivery"}),
		"paymentStatus":   f.pick([]string{"pending", "completed", "failed", "refunded"}),
		"shippingAddress": shippingAddress,
		"billingAddress":  address("Billing Ave"),
		"trackingNumber":  tracking,
		"orderDate":       placed.UTC().Format(time.RFC3339Nano),
		"confirmedAt":     confirmedAt,
		"shippedAt":       shippedAt,
		"deliveredAt":     deliveredAt,
		"notes":           notes,
	}
}

func (f *faker) transaction(i int) map[string]any {
	amount := f.money(10, 5000)
	at := f.now.Add(-time.Duration(f.rnd.Int64N(int64(30 * 24 * time.Hour))))
	status := f.pick([]string{"pending", "completed", "failed", "cancelled"})
	var completedAt any
	if status == "completed" {
		completedAt = at.Add(time.Duration(f.rnd.Int64N(int64(time.Hour)))).UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{
		"id":                   f.uuid(),
		"transactionId":        fmt.Sprintf("TXN-%010d", i+100000),
		"userId":               f.uuid(),
		"orderId":              f.uuid(),
		"type":                 f.pick([]string{"payment", "refund", "chargeback", "adjustment"}),
		"amount":               amount,
		"currency":             "USD",
		"status":               status,
		"paymentMethod":        f.pick([]string{"credit_card", "debit_card", "paypal", "bank_transfer", "wallet"}),
		"cardLast4":            strconv.Itoa(1000 + f.rnd.IntN(9000)),
		"cardBrand":            f.pick([]string{"Visa", "Mastercard", "American Express", "Discover"}),
		"gateway":              f.pick([]string{"Stripe", "PayPal", "Square", "Authorize.Net"}),
		"gatewayTransactionId": "GTW-" + f.uuid(),
		"description":          fmt.Sprintf("Payment for order #%d", 10000+f.rnd.IntN(90000)),
		"fee":                  round2(amount * 0.029),
		"netAmount":            round2(amount - amount*0.029),
		"transactionDate":      at.UTC().Format(time.RFC3339Nano),
		"completedAt":          completedAt,
		"metadata": map[string]any{
			"ipAddress":  fmt.Sprintf("%d.%d.%d.%d", f.rnd.IntN(255), f.rnd.IntN(255), f.rnd.IntN(255), f.rnd.IntN(255)),
			"userAgent":  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			"risk_score": f.rnd.IntN(101),
		},
	}
}

// custom fills each schema field from its type hint. Without a schema it
// produces a small generic record.
func (f *faker) custom(i int, schema any) map[string]any {
	fields, ok := schema.(map[string]any)
	if !ok || len(fields) == 0 {
		return map[string]any{
			"id":        f.uuid(),
			"field1":    fmt.Sprintf("value-%d", i),
			"field2":    f.rnd.IntN(1000),
			"field3":    f.chance(0.5),
			"createdAt": f.now.UTC().Format(time.RFC3339Nano),
		}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(fields))
	for _, k := range keys {
		out[k] = f.fieldValue(fmt.Sprint(fields[k]), i)
	}
	return out
}

func (f *faker) fieldValue(hint string, i int) any {
	h := strings.ToLower(hint)
	switch {
	case strings.Contains(h, "uuid") || strings.Contains(h, "id"):
		return f.uuid()
	case strings.Contains(h, "email"):
		return fmt.Sprintf("user%d@example.com", i)
	case strings.Contains(h, "phone"):
		return f.phone()
	case strings.Contains(h, "url"):
		return fmt.Sprintf("https://example.com/%d", i)
	case strings.Contains(h, "date") || strings.Contains(h, "timestamp"):
		return f.dateBetween(year(2020), f.now)
	case strings.Contains(h, "number") || strings.Contains(h, "int"):
		return f.rnd.IntN(1000)
	case strings.Contains(h, "float") || strings.Contains(h, "decimal"):
		return f.money(0, 1000)
	case strings.Contains(h, "bool"):
		return f.chance(0.5)
	default:
		return fmt.Sprintf("value-%d", i)
	}
}

var (
	rePlaceholder = regexp.MustCompile(`\{\{faker\.([^}]+)\}\}`)
	reNumberCmd   = regexp.MustCompile(`^number\((\d+)-(\d+)\)$`)
	reChoiceCmd   = regexp.MustCompile(`^choice\(\[([^\]]+)\]\)$`)
	reDateCmd     = regexp.MustCompile(`^date\((\d{4})-(\d{4})\)$`)
)

// customJSON expands {{faker.*}} placeholders throughout a template.
func (f *faker) customJSON(i int, template any) any {
	if template == nil {
		return map[string]any{
			"id":        f.uuid(),
			"index":     i,
			"generated": true,
			"timestamp": f.now.UTC().Format(time.RFC3339Nano),
		}
	}
	return f.expand(template, i)
}

func (f *faker) expand(v any, i int) any {
	switch t := v.(type) {
	case string:
		return f.expandString(t, i)
	case []any:
		out := make([]any, len(t))
		for k, item := range t {
			out[k] = f.expand(item, i)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = f.expand(item, i)
		}
		return out
	default:
		return v
	}
}

// expandString returns the raw generated value when the whole string is a
// single placeholder, and a string with every placeholder substituted otherwise.
func (f *faker) expandString(s string, i int) any {
	matches := rePlaceholder.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return f.command(s[matches[0][2]:matches[0][3]], i)
	}
	return rePlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		sub := rePlaceholder.FindStringSubmatch(m)
		return fmt.Sprint(f.command(sub[1], i))
	})
}

func (f *faker) command(cmd string, i int) any {
	cmd = strings.TrimSpace(cmd)
	switch cmd {
	case "name":
		return f.pick(firstNames) + " " + f.pick(lastNames)
	case "firstName":
		return f.pick(firstNames)
	case "lastName":
		return f.pick(lastNames)
	case "email":
		return f.email(i)
	case "phone":
		return f.phone()
	case "uuid":
		return f.uuid()
	case "boolean":
		return f.chance(0.5)
	case "city":
		return f.pick(cities)
	case "state":
		return f.pick(states)
	case "address":
		return fmt.Sprintf("%d %s St", 1+f.rnd.IntN(9999), f.pick(streets[:3]))
	}
	if m := reNumberCmd.FindStringSubmatch(cmd); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if hi < lo {
			lo, hi = hi, lo
		}
		return lo + f.rnd.IntN(hi-lo+1)
	}
	if m := reChoiceCmd.FindStringSubmatch(cmd); m != nil {
		opts := strings.Split(m[1], ",")
		for k := range opts {
			opts[k] = strings.TrimSpace(opts[k])
		}
		return f.pick(opts)
	}
	if m := reDateCmd.FindStringSubmatch(cmd); m != nil {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		return f.dateBetween(year(from), time.Date(to, time.December, 31, 0, 0, 0, 0, time.UTC))
	}
	return "{{" + cmd + "}}"
}

// edgeCases returns hand written extreme records for the types that have them.
func (f *faker) edgeCases(dt DataType) []any {
	now := f.now.UTC().Format(time.RFC3339Nano)
	switch dt {
	case TypeUser:
		return []any{map[string]any{
			"id":            f.uuid(),
			"firstName":     "",
			"lastName":      "O'Brien",
			"email":         "test+special@example.com",
			"username":      "a",
			"phone":         "+11234567890",
			"dateOfBirth":   "1900-01-01",
			"age":           124,
			"address":       map[string]any{"street": "1 A", "city": "X", "state": "XX", "zipCode": "00000", "country": "USA"},
			"role":          "admin",
			"status":        "active",
			"emailVerified": false,
			"preferences":   map[string]any{"newsletter": false, "notifications": false, "theme": "light"},
			"createdAt":     "2020-01-01T00:00:00.000Z",
			"lastLogin":     now,
		}}
	case TypeProduct:
		return []any{map[string]any{
			"id":            f.uuid(),
			"name":          "A",
			"description":   "",
			"category":      "Electronics",
			"subCategory":   "Featured",
			"price":         0.01,
			"originalPrice": 0.01,
			"currency":      "USD",
			"sku":           "SKU-000000",
			"barcode":       "0000000000000",
			"stock":         0,
			"rating":        0,
			"reviewCount":   0,
			"imageUrl":      "",
			"images":        []string{},
			"tags":          []string{},
			"dimensions":    map[string]any{"width": 0, "height": 0, "depth": 0, "unit": "cm"},
			"weight":        0.01,
			"weightUnit":    "kg",
			"isActive":      false,
			"isFeatured":    false,
			"createdAt":     now,
			"updatedAt":     now,
		}}
	}
	return nil
}
