package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

const answerSystemPrompt = `Anda adalah asisten ahli hukum lalu lintas Indonesia. Tugas Anda adalah menjawab pertanyaan pengguna berdasarkan kutipan dokumen hukum yang diberikan.

ATURAN PENTING:
1. Jawab langsung dan ringkas tanpa frasa pembuka seperti "Berdasarkan dokumen..." atau "Menurut konteks...".
2. Gunakan bahasa Indonesia formal dan mudah dipahami masyarakat umum.
3. Kutip nomor pasal dan ayat yang relevan, contoh: Pasal 106 ayat (4).
4. Jika informasi tidak ditemukan dalam konteks, nyatakan dengan jelas: "` + domain.NotFoundAnswer + `"
5. JANGAN mengarang atau menambahkan informasi yang tidak ada dalam konteks.
6. Jika ada sanksi pidana, sebutkan dengan jelas (kurungan, denda).
7. Gunakan format yang mudah dibaca (paragraf pendek, poin-poin jika perlu).`

const expansionSystemPrompt = `Anda adalah ahli hukum lalu lintas Indonesia yang sangat memahami UU No. 22 Tahun 2009 tentang Lalu Lintas dan Angkutan Jalan (LLAJ).

Tugas Anda adalah mengubah pertanyaan pengguna dalam bahasa sehari-hari menjadi kalimat pencarian yang sangat mirip dengan teks dalam UU LLAJ.

PENTING:
- "lampu merah" dalam bahasa sehari-hari = "Alat Pemberi Isyarat Lalu Lintas" dalam UU
- "menerobos lampu merah" = "melanggar aturan perintah atau larangan yang dinyatakan dengan Alat Pemberi Isyarat Lalu Lintas"
- Jika tentang sanksi/denda, tambahkan kata "dipidana" dan "denda"

Berikan output berupa objek JSON valid tanpa markdown:
{"legal_search_query": "kalimat pencarian panjang dan detail", "key_legal_phrases": ["frasa hukum 1", "frasa hukum 2"]}
key_legal_phrases berisi paling banyak 3 frasa.`

const (
	historyRoleUser      = "Pengguna"
	historyRoleAssistant = "Asisten"
)

func buildAnswerPrompt(question string, results []domain.FusedResult, history []domain.Message) string {
	var b strings.Builder
	b.WriteString("KUTIPAN DOKUMEN HUKUM LALU LINTAS:\n")
	b.WriteString(formatContext(results))
	b.WriteString("\n")

	if h := formatHistory(history); h != "" {
		b.WriteString("\nRIWAYAT PERCAKAPAN:\n")
		b.WriteString(h)
		b.WriteString("\n")
	}

	b.WriteString("\nPERTANYAAN PENGGUNA:\n")
	b.WriteString(question)
	b.WriteString("\n\nJawab pertanyaan di atas berdasarkan kutipan dokumen hukum yang diberikan. Ikuti aturan yang telah ditetapkan.")
	return b.String()
}

// formatContext renders "[i] Pasal N ayat (M) (Isi|Penjelasan):" blocks.
func formatContext(results []domain.FusedResult) string {
	if len(results) == 0 {
		return "Tidak ada dokumen yang relevan ditemukan."
	}
	parts := make([]string, 0, len(results))
	for i, r := range results {
		label := "Isi"
		if r.Chunk.ChunkType == domain.ChunkTypeElucidation {
			label = "Penjelasan"
		}
		parts = append(parts, fmt.Sprintf("[%d] %s (%s):\n%s", i+1, r.Chunk.Reference(), label, r.Chunk.Text))
	}
	return strings.Join(parts, "\n\n")
}

func formatHistory(history []domain.Message) string {
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := historyRoleAssistant
		if msg.Role == domain.RoleUser {
			role = historyRoleUser
		}
		lines = append(lines, role+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

func buildExpansionPrompt(req domain.ExpansionRequest) string {
	var b strings.Builder
	b.WriteString("Pertanyaan pengguna: ")
	b.WriteString(req.Query)
	if len(req.MatchedTerms) > 0 {
		b.WriteString("\nIstilah hukum terkait: ")
		b.WriteString(strings.Join(req.MatchedTerms, ", "))
	}
	if h := formatHistory(req.History); h != "" {
		b.WriteString("\n\nRiwayat percakapan:\n")
		b.WriteString(h)
	}
	b.WriteString("\n\nUbah pertanyaan di atas menjadi kalimat pencarian yang sangat mirip dengan teks dalam UU LLAJ.")
	b.WriteString("\nBuat kalimat yang PANJANG dan DETAIL.")
	return b.String()
}
