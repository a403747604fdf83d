package holdout

import "exemplar/internal/domain"

// Intent labels used by the curated cases.
const (
	IntentGenerateJSON = "generate_json"
	IntentExplainTerm  = "explain_term"
	IntentGreeting     = "greeting"
	IntentUnknown      = "unknown"
)

// CuratedCases are the adversarial and boundary examples appended to every new
// holdout, grouped in a fixed order.
var CuratedCases = []domain.HoldoutEntry{
	// distractor terms
	{Text: "Prompt mühendisliği nedir?", ExpectedIntent: IntentExplainTerm},
	{Text: "Bana prompt üretme, sadece saati söyle.", ExpectedIntent: IntentUnknown},
	{Text: "Json çıktısı nasıl görünür?", ExpectedIntent: IntentExplainTerm},

	// abstract or negative imagery
	{Text: "Hiçbir şeyin olmadığı bir boşluk çiz.", ExpectedIntent: IntentGenerateJSON},
	{Text: "Bana hüzünlü bir şarkı gibi hissettiren bir resim yap.", ExpectedIntent: IntentGenerateJSON},

	// greetings
	{Text: "Merhaba, nasılsın?", ExpectedIntent: IntentGreeting},
	{Text: "Selam, bugün hava nasıl?", ExpectedIntent: IntentGreeting},
	{Text: "Günaydın!", ExpectedIntent: IntentGreeting},

	// farewells
	{Text: "Görüşürüz, kendine iyi bak.", ExpectedIntent: IntentGreeting},
	{Text: "Baybay", ExpectedIntent: IntentGreeting},
	{Text: "Çıkış yapıyorum.", ExpectedIntent: IntentGreeting},

	// refusals
	{Text: "Hayır, bunu istemiyorum.", ExpectedIntent: IntentUnknown},
	{Text: "Vazgeçtim, yapma.", ExpectedIntent: IntentUnknown},
	{Text: "Kötü cevap verdin.", ExpectedIntent: IntentUnknown},

	// out of domain
	{Text: "Bu ürünü sepete ekle.", ExpectedIntent: IntentUnknown},
	{Text: "Siparişim nerede kaldı?", ExpectedIntent: IntentUnknown},
	{Text: "Ürünü iade etmek istiyorum.", ExpectedIntent: IntentUnknown},
	{Text: "Fiyatı ne kadar?", ExpectedIntent: IntentUnknown},

	// technical terms
	{Text: "Seed -1 ne demek?", ExpectedIntent: IntentExplainTerm},
	{Text: "Negative prompt ne işe yarar?", ExpectedIntent: IntentExplainTerm},

	// plain generation requests
	{Text: "Kırmızı araba", ExpectedIntent: IntentGenerateJSON},
	{Text: "Uzayda süzülen astronot", ExpectedIntent: IntentGenerateJSON},
}
