package gasdb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Station is one branch with its cylinder prices.
type Station struct {
	Name    string
	Code    string
	Address string
	Phone   string
	// Prices holds NT$ per cylinder, largest size first.
	Prices []SizePrice
}

// SizePrice is the price of one cylinder size in kilograms.
type SizePrice struct {
	Kg    int
	Price int
}

// Stations are the two branches, in display order.
var Stations = []Station{
	{
		Name:    "美崙",
		Code:    "ML",
		Address: "花蓮市中美路二街79號",
		Phone:   "(03) 831-5888",
		Prices:  []SizePrice{{50, 1850}, {20, 740}, {16, 630}, {10, 450}, {4, 250}},
	},
	{
		Name:    "吉安",
		Code:    "JA",
		Address: "花蓮縣吉安鄉南昌路25號",
		Phone:   "(03) 833-1999",
		Prices:  []SizePrice{{20, 720}, {16, 610}, {10, 430}, {4, 210}},
	},
}

// StaticProducts lists every station product, ordered by size then station.
// It backs the product listing when no database is configured.
func StaticProducts() []Product {
	var out []Product
	for _, kg := range []int{4, 10, 16, 20, 50} {
		for _, st := range Stations {
			for _, sp := range st.Prices {
				if sp.Kg != kg {
					continue
				}
				out = append(out, Product{
					ID:       strconv.Itoa(len(out) + 1),
					Name:     fmt.Sprintf("%dkg 瓦斯 (%s)", kg, st.Name),
					Code:     fmt.Sprintf("%s-%d", st.Code, kg),
					Price:    float64(sp.Price),
					Unit:     "桶",
					Capacity: fmt.Sprintf("%dkg", kg),
					Station:  st.Name,
				})
			}
		}
	}
	return out
}

// stationForCode maps a product code such as "ML-4" to its station name.
func stationForCode(code string) string {
	prefix, _, ok := strings.Cut(code, "-")
	if !ok {
		return ""
	}
	for _, st := range Stations {
		if st.Code == prefix {
			return st.Name
		}
	}
	return ""
}

// PriceTable renders the station price list shown to customers.
func PriceTable() string {
	var b strings.Builder
	b.WriteString("🔥 瓦斯價格表 🔥\n")
	for _, st := range Stations {
		fmt.Fprintf(&b, "\n📍 %s站 (%s)\n📞 %s\n", st.Name, st.Address, st.Phone)
		for i, sp := range st.Prices {
			branch := "├"
			if i == len(st.Prices)-1 {
				branch = "└"
			}
			fmt.Fprintf(&b, "%s %d公斤：NT$%s\n", branch, sp.Kg, Thousands(sp.Price))
		}
	}
	b.WriteString("\n💡 價格僅供參考，實際價格以現場為準")
	return b.String()
}

// Thousands formats n with comma separators.
func Thousands(n int) string {
	if n < 0 {
		return "-" + Thousands(-n)
	}
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

// SeedKnowledge is a knowledge entry Seed maintains, keyed by title.
type SeedKnowledge struct {
	Title    string
	Category string
	Content  string
	Keywords []string
	Priority int
}

// CoreKnowledge is the knowledge Seed keeps present.
var CoreKnowledge = []SeedKnowledge{
	{
		Title:    "瓦斯安全使用注意事項",
		Category: "safety",
		Content: "1. 使用瓦斯時保持室內通風良好。\n" +
			"2. 定期檢查瓦斯管線與開關是否老化。\n" +
			"3. 瓦斯桶應直立放置於通風處，避免日曬。\n" +
			"4. 離開或就寢前關閉瓦斯開關。",
		Keywords: []string{"安全", "注意事項", "通風", "管線"},
		Priority: 10,
	},
	{
		Title:    "瓦斯外洩緊急處理",
		Category: "safety",
		Content: "聞到瓦斯味時：立即關閉瓦斯開關，打開門窗通風，" +
			"切勿開關電器或使用明火，離開現場後撥打 119 或本行電話。",
		Keywords: []string{"外洩", "漏氣", "緊急", "瓦斯味"},
		Priority: 10,
	},
	{
		Title:    "瓦斯價格表",
		Category: "pricing",
		Content:  PriceTable(),
		Keywords: []string{"價格", "價錢", "多少錢", "價格表"},
		Priority: 8,
	},
	{
		Title:    "配送服務說明",
		Category: "delivery",
		Content: "各站點營業時間內均可安排配送，請來電或透過 LINE 告知地址與桶數。" +
			"配送費另計，偏遠地區請先洽詢。",
		Keywords: []string{"配送", "送貨", "運費"},
		Priority: 6,
	},
	{
		Title:    "營業時間",
		Category: "service",
		Content: "美崙站：週一至週日 08:00-21:00\n" +
			"吉安站：週一至週日 08:00-20:00",
		Keywords: []string{"營業時間", "時間", "營業"},
		Priority: 5,
	},
	{
		Title:    "瓦斯爐故障排除",
		Category: "maintenance",
		Content: "1. 點不著火：確認瓦斯桶開關已開、桶內仍有瓦斯。\n" +
			"2. 火焰偏紅或冒黑煙：清潔爐頭出火孔，調整空氣門。\n" +
			"3. 點火器沒有聲音：更換電池或檢查點火針。\n" +
			"仍無法排除請勿自行拆修，請聯絡本行派員檢修。",
		Keywords: []string{"瓦斯爐", "爐具", "點火", "故障"},
		Priority: 4,
	},
	{
		Title:    "熱水器維修須知",
		Category: "maintenance",
		Content: "1. 熱水器須裝在通風處，屋內型應加裝排氣管。\n" +
			"2. 水溫忽冷忽熱：檢查水壓與瓦斯壓力是否足夠。\n" +
			"3. 無法點火：確認電池電量，進氣口沒有堵塞。\n" +
			"4. 聞到異味立即關閉開關並開窗。",
		Keywords: []string{"熱水器", "維修", "排氣"},
		Priority: 4,
	},
	{
		Title:    "瓦斯桶更換步驟",
		Category: "maintenance",
		Content: "1. 關閉舊桶開關後再卸下調整器。\n" +
			"2. 檢查新桶封口與檢驗期限。\n" +
			"3. 裝上調整器並鎖緊，以肥皂水塗抹接頭。\n" +
			"4. 接頭不冒泡後再開啟開關。",
		Keywords: []string{"換桶", "更換", "調整器"},
		Priority: 4,
	},
	{
		Title:    "服務收費標準",
		Category: "pricing",
		Content: "瓦斯依當月價格表計價，市區配送不另收費。\n" +
			"爐具與熱水器到府檢測費 300 元，零件另計。\n" +
			"管線安裝依現場施工報價。",
		Keywords: []string{"收費", "費用", "檢測費"},
		Priority: 3,
	},
}

// SeedResult counts what Seed changed.
type SeedResult struct {
	ProductsInserted  int
	ProductsUpdated   int
	KnowledgeInserted int
	KnowledgeUpdated  int
}

// Seed upserts StaticProducts by code and CoreKnowledge by title in one
// transaction. Running it again only refreshes prices and content.
func (d *DB) Seed(ctx context.Context) (SeedResult, error) {
	var res SeedResult
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, p := range StaticProducts() {
		updated, err := upsert(ctx, tx,
			`UPDATE "Product" SET "name" = $2, "price" = $3, "capacity" = $4, "isActive" = true, "updatedAt" = now()
			 WHERE "code" = $1`,
			[]any{p.Code, p.Name, p.Price, p.Capacity},
			`INSERT INTO "Product" ("id", "name", "code", "price", "capacity", "unit") VALUES ($1, $2, $3, $4, $5, $6)`,
			[]any{uuid.NewString(), p.Name, p.Code, p.Price, p.Capacity, p.Unit})
		if err != nil {
			return res, fmt.Errorf("seed product %s: %w", p.Code, err)
		}
		if updated {
			res.ProductsUpdated++
		} else {
			res.ProductsInserted++
		}
	}

	for _, k := range CoreKnowledge {
		updated, err := upsert(ctx, tx,
			`UPDATE "knowledge_base" SET "category" = $2, "content" = $3, "keywords" = $4, "priority" = $5,
			        "isActive" = true, "updatedAt" = now()
			 WHERE "title" = $1`,
			[]any{k.Title, k.Category, k.Content, pq.Array(k.Keywords), k.Priority},
			`INSERT INTO "knowledge_base" ("id", "title", "category", "content", "keywords", "priority")
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			[]any{uuid.NewString(), k.Title, k.Category, k.Content, pq.Array(k.Keywords), k.Priority})
		if err != nil {
			return res, fmt.Errorf("seed knowledge %q: %w", k.Title, err)
		}
		if updated {
			res.KnowledgeUpdated++
		} else {
			res.KnowledgeInserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	d.log.Info("seed applied",
		"products_inserted", res.ProductsInserted, "products_updated", res.ProductsUpdated,
		"knowledge_inserted", res.KnowledgeInserted, "knowledge_updated", res.KnowledgeUpdated)
	return res, nil
}

// upsert runs update and falls back to insert when it touched no rows.
func upsert(ctx context.Context, tx *sql.Tx, update string, updateArgs []any, insert string, insertArgs []any) (bool, error) {
	r, err := tx.ExecContext(ctx, update, updateArgs...)
	if err != nil {
		return false, err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := tx.ExecContext(ctx, insert, insertArgs...); err != nil {
		return false, err
	}
	return false, nil
}
