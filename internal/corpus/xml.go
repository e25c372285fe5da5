package corpus

import (
	"encoding/xml"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/joelkehle/research-agency/internal/pico"
)

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ParsePubmedXML extracts papers from raw efetch XML. Batched fetches are
// often several XML documents concatenated together; each document is parsed
// independently and unparseable fragments are skipped.
func ParsePubmedXML(raw string) []Paper {
	var papers []Paper
	meshTotal := 0
	meshMapped := 0

	for _, doc := range splitDocuments(raw) {
		parsed := parseDocument(doc)
		for i := range parsed {
			var stats pico.MapStats
			parsed[i].PICO, stats = pico.MapTermsWithStats(parsed[i].MeshTerms)
			meshTotal += stats.Terms
			meshMapped += stats.Matched
		}
		papers = append(papers, parsed...)
	}
	if meshTotal > 0 {
		log.Printf("corpus parse papers=%d mesh_terms=%d mapped=%d", len(papers), meshTotal, meshMapped)
	}
	return papers
}

func splitDocuments(raw string) []string {
	if strings.Count(raw, "<?xml") <= 1 {
		return []string{raw}
	}
	parts := strings.Split(raw, "<?xml")
	docs := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		docs = append(docs, "<?xml"+part)
	}
	return docs
}

// --- XML document model ---

type articleSet struct {
	Articles []xmlArticle `xml:"PubmedArticle"`
}

type xmlArticle struct {
	Citation xmlCitation `xml:"MedlineCitation"`
	Data     xmlPubData  `xml:"PubmedData"`
}

type xmlCitation struct {
	PMID     string     `xml:"PMID"`
	Article  xmlDetails `xml:"Article"`
	MeshList struct {
		Headings []struct {
			Descriptor string `xml:"DescriptorName"`
		} `xml:"MeshHeading"`
	} `xml:"MeshHeadingList"`
}

type xmlDetails struct {
	Title    flatText `xml:"ArticleTitle"`
	Abstract struct {
		Sections []abstractSection `xml:"AbstractText"`
	} `xml:"Abstract"`
	Journal struct {
		Title           string `xml:"Title"`
		ISOAbbreviation string `xml:"ISOAbbreviation"`
		Issue           struct {
			PubDate struct {
				Year        string `xml:"Year"`
				MedlineDate string `xml:"MedlineDate"`
			} `xml:"PubDate"`
		} `xml:"JournalIssue"`
	} `xml:"Journal"`
	AuthorList struct {
		Authors []struct {
			LastName string `xml:"LastName"`
			ForeName string `xml:"ForeName"`
			Initials string `xml:"Initials"`
		} `xml:"Author"`
	} `xml:"AuthorList"`
	ArticleDate struct {
		Year string `xml:"Year"`
	} `xml:"ArticleDate"`
	PubTypeList struct {
		Types []string `xml:"PublicationType"`
	} `xml:"PublicationTypeList"`
}

type xmlPubData struct {
	IDList struct {
		IDs []struct {
			Type  string `xml:"IdType,attr"`
			Value string `xml:",chardata"`
		} `xml:"ArticleId"`
	} `xml:"ArticleIdList"`
}

// flatText flattens mixed content (titles and abstracts carry inline markup
// like <i> and <sup>) into the text fragments joined by single spaces.
type flatText string

func (f *flatText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	s, err := flattenElement(d, start)
	if err != nil {
		return err
	}
	*f = flatText(s)
	return nil
}

// abstractSection is an AbstractText element: optional Label attribute plus
// flattened mixed content.
type abstractSection struct {
	Label string
	Text  string
}

func (a *abstractSection) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	s, err := flattenElement(d, start)
	if err != nil {
		return err
	}
	a.Text = s
	return nil
}

func flattenElement(d *xml.Decoder, start xml.StartElement) (string, error) {
	var parts []string
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if s := strings.TrimSpace(string(t)); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " "), nil
}

func parseDocument(doc string) []Paper {
	// Tolerate stray content before the first tag.
	if idx := strings.Index(doc, "<"); idx > 0 {
		doc = doc[idx:]
	}
	dec := xml.NewDecoder(strings.NewReader(doc))
	dec.Strict = false

	var set articleSet
	if err := dec.Decode(&set); err != nil {
		log.Printf("corpus parse skipping unparseable document err=%q", err.Error())
		return nil
	}

	papers := make([]Paper, 0, len(set.Articles))
	for _, art := range set.Articles {
		papers = append(papers, buildPaper(art))
	}
	return papers
}

func buildPaper(art xmlArticle) Paper {
	det := art.Citation.Article
	p := Paper{
		PMID:   strings.TrimSpace(art.Citation.PMID),
		Title:  strings.TrimSpace(string(det.Title)),
		Source: SourcePubmed,
	}

	var sections []string
	for _, sec := range det.Abstract.Sections {
		text := strings.TrimSpace(sec.Text)
		if text == "" {
			continue
		}
		if sec.Label != "" {
			sections = append(sections, sec.Label+": "+text)
		} else {
			sections = append(sections, text)
		}
	}
	p.Abstract = strings.Join(sections, " ")

	p.Year = resolveYear(det)

	if j := strings.TrimSpace(det.Journal.Title); j != "" {
		p.Journal = j
	} else {
		p.Journal = strings.TrimSpace(det.Journal.ISOAbbreviation)
	}

	for _, a := range det.AuthorList.Authors {
		last := strings.TrimSpace(a.LastName)
		if last == "" {
			continue
		}
		switch {
		case strings.TrimSpace(a.ForeName) != "":
			p.Authors = append(p.Authors, last+" "+strings.TrimSpace(a.ForeName))
		case strings.TrimSpace(a.Initials) != "":
			p.Authors = append(p.Authors, last+" "+strings.TrimSpace(a.Initials))
		default:
			p.Authors = append(p.Authors, last)
		}
	}

	for _, h := range art.Citation.MeshList.Headings {
		if d := strings.TrimSpace(h.Descriptor); d != "" {
			p.MeshTerms = append(p.MeshTerms, d)
		}
	}

	// Publication types that exist in the category table also count as
	// mappable terms (study types arrive this way, not as MeSH).
	for _, pt := range det.PubTypeList.Types {
		pt = strings.TrimSpace(pt)
		if pt == "" {
			continue
		}
		p.PublicationTypes = append(p.PublicationTypes, pt)
		if pico.Known(pt) {
			p.MeshTerms = append(p.MeshTerms, pt)
		}
	}

	for _, id := range art.Data.IDList.IDs {
		if id.Type == "doi" {
			p.DOI = strings.TrimSpace(id.Value)
			break
		}
	}
	return p
}

// resolveYear tries PubDate/Year, then ArticleDate/Year, then a four-digit
// year inside MedlineDate (formats like "2023 Jan-Feb").
func resolveYear(det xmlDetails) int {
	year := strings.TrimSpace(det.Journal.Issue.PubDate.Year)
	if year == "" {
		year = strings.TrimSpace(det.ArticleDate.Year)
	}
	if year == "" {
		if m := yearRe.FindString(det.Journal.Issue.PubDate.MedlineDate); m != "" {
			year = m
		}
	}
	n, err := strconv.Atoi(year)
	if err != nil {
		return 0
	}
	return n
}
