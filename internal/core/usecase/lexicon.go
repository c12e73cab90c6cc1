package usecase

import (
	"strings"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

// DefaultTermMappings maps everyday Indonesian traffic vocabulary onto UU LLAJ wording.
func DefaultTermMappings() []domain.TermMapping {
	return []domain.TermMapping{
		{Phrase: "lampu merah", LegalTerms: []string{"Alat Pemberi Isyarat Lalu Lintas", "APILL", "isyarat lalu lintas"}},
		{Phrase: "lampu lalu lintas", LegalTerms: []string{"Alat Pemberi Isyarat Lalu Lintas", "APILL"}},
		{Phrase: "traffic light", LegalTerms: []string{"Alat Pemberi Isyarat Lalu Lintas", "APILL"}},
		{Phrase: "menerobos", LegalTerms: []string{"melanggar aturan perintah atau larangan", "tidak mematuhi"}},
		{Phrase: "ngebut", LegalTerms: []string{"batas kecepatan", "kecepatan maksimal", "kecepatan tinggi"}},
		{Phrase: "ugal-ugalan", LegalTerms: []string{"membahayakan", "keselamatan lalu lintas"}},
		{Phrase: "sim", LegalTerms: []string{"Surat Izin Mengemudi"}},
		{Phrase: "stnk", LegalTerms: []string{"Surat Tanda Nomor Kendaraan Bermotor"}},
		{Phrase: "bpkb", LegalTerms: []string{"Buku Pemilik Kendaraan Bermotor"}},
		{Phrase: "helm", LegalTerms: []string{"helm standar nasional Indonesia"}},
		{Phrase: "sabuk pengaman", LegalTerms: []string{"sabuk keselamatan"}},
		{Phrase: "parkir sembarangan", LegalTerms: []string{"parkir", "larangan parkir", "tempat parkir"}},
		{Phrase: "bahu jalan", LegalTerms: []string{"bahu Jalan", "badan jalan"}},
		{Phrase: "trotoar", LegalTerms: []string{"trotoar", "fasilitas Pejalan Kaki"}},
		{Phrase: "menyalip", LegalTerms: []string{"melewati Kendaraan", "mendahului"}},
		{Phrase: "zigzag", LegalTerms: []string{"gerakan lalu lintas", "manuver berbahaya"}},
		{Phrase: "motor", LegalTerms: []string{"Sepeda Motor", "Kendaraan Bermotor"}},
		{Phrase: "mobil", LegalTerms: []string{"Kendaraan Bermotor", "kendaraan beroda empat"}},
		{Phrase: "tilang", LegalTerms: []string{"pidana", "denda", "pelanggaran"}},
		{Phrase: "denda", LegalTerms: []string{"pidana denda", "sanksi"}},
		{Phrase: "kaca spion", LegalTerms: []string{"kaca spion", "spion"}},
		{Phrase: "plat nomor", LegalTerms: []string{"Tanda Nomor Kendaraan Bermotor", "TNKB"}},
		{Phrase: "lawan arah", LegalTerms: []string{"melawan arus", "arah lalu lintas"}},
		{Phrase: "jalur busway", LegalTerms: []string{"lajur khusus", "jalur khusus"}},
		{Phrase: "zebra cross", LegalTerms: []string{"tempat penyeberangan", "penyeberangan Pejalan Kaki"}},
		{Phrase: "mabuk", LegalTerms: []string{"pengaruh alkohol", "minuman beralkohol"}},
		{Phrase: "main hp", LegalTerms: []string{"menggunakan telepon", "konsentrasi"}},
	}
}

// DefaultQueryPatterns lists canned legal queries, highest priority first.
func DefaultQueryPatterns() []domain.QueryPattern {
	return []domain.QueryPattern{
		{Trigger: "menerobos lampu merah", Query: "Setiap orang yang mengemudikan Kendaraan Bermotor di Jalan yang melanggar aturan perintah atau larangan yang dinyatakan dengan Alat Pemberi Isyarat Lalu Lintas dipidana"},
		{Trigger: "parkir di trotoar", Query: "fasilitas Pejalan Kaki trotoar parkir larangan"},
		{Trigger: "bahu jalan saat macet", Query: "bahu Jalan Kendaraan keadaan darurat lalu lintas"},
		{Trigger: "helm", Query: "Sepeda Motor helm standar nasional Indonesia dipidana"},
		{Trigger: "sabuk pengaman", Query: "sabuk keselamatan Pengemudi Penumpang dipidana"},
		{Trigger: "menyalip zigzag", Query: "gerakan lalu lintas melewati Kendaraan berbahaya dipidana"},
	}
}

// normalizeQuery lower-cases, trims and collapses inner whitespace.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// TermResolver is read-only after construction and safe for concurrent use.
type TermResolver struct {
	mappings []domain.TermMapping
}

func NewTermResolver(mappings []domain.TermMapping) *TermResolver {
	if len(mappings) == 0 {
		mappings = DefaultTermMappings()
	}
	normalized := make([]domain.TermMapping, 0, len(mappings))
	for _, m := range mappings {
		phrase := normalizeQuery(m.Phrase)
		if phrase == "" || len(m.LegalTerms) == 0 {
			continue
		}
		terms := make([]string, len(m.LegalTerms))
		copy(terms, m.LegalTerms)
		normalized = append(normalized, domain.TermMapping{Phrase: phrase, LegalTerms: terms})
	}
	return &TermResolver{mappings: normalized}
}

// Resolve returns the legal terms of every phrase contained in the normalized query,
// in table order and without case-insensitive duplicates.
func (r *TermResolver) Resolve(normalized string) []string {
	if normalized == "" {
		return nil
	}
	seen := make(map[string]struct{}, 8)
	out := make([]string, 0, 8)
	for _, m := range r.mappings {
		if !strings.Contains(normalized, m.Phrase) {
			continue
		}
		for _, term := range m.LegalTerms {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			key := strings.ToLower(term)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, term)
		}
	}
	return out
}

type PatternMatcher struct {
	patterns []domain.QueryPattern
}

func NewPatternMatcher(patterns []domain.QueryPattern) *PatternMatcher {
	if len(patterns) == 0 {
		patterns = DefaultQueryPatterns()
	}
	normalized := make([]domain.QueryPattern, 0, len(patterns))
	for _, p := range patterns {
		trigger := normalizeQuery(p.Trigger)
		query := strings.TrimSpace(p.Query)
		if trigger == "" || query == "" {
			continue
		}
		normalized = append(normalized, domain.QueryPattern{Trigger: trigger, Query: query})
	}
	return &PatternMatcher{patterns: normalized}
}

// Match returns the canned query of the first trigger found in the normalized query.
func (m *PatternMatcher) Match(normalized string) (string, bool) {
	if normalized == "" {
		return "", false
	}
	for _, p := range m.patterns {
		if strings.Contains(normalized, p.Trigger) {
			return p.Query, true
		}
	}
	return "", false
}
