package corpus

import (
	"reflect"
	"strings"
	"testing"
)

const sampleArticle = `<?xml version="1.0" ?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">12345678</PMID>
      <Article>
        <Journal>
          <ISOAbbreviation>Nicotine Tob Res</ISOAbbreviation>
          <Title>Nicotine and Tobacco Research</Title>
          <JournalIssue>
            <PubDate><Year>2021</Year></PubDate>
          </JournalIssue>
        </Journal>
        <ArticleTitle>Text messaging for <i>smoking</i> cessation</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Quit rates remain low.</AbstractText>
          <AbstractText Label="METHODS">A randomized trial of SMS support.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author>
            <LastName>Rivera</LastName>
            <ForeName>Ana</ForeName>
          </Author>
          <Author>
            <LastName>Chen</LastName>
            <Initials>L</Initials>
          </Author>
        </AuthorList>
        <PublicationTypeList>
          <PublicationType>Randomized Controlled Trial</PublicationType>
          <PublicationType>Journal Article</PublicationType>
        </PublicationTypeList>
      </Article>
      <MeshHeadingList>
        <MeshHeading><DescriptorName>Adult</DescriptorName></MeshHeading>
        <MeshHeading><DescriptorName>Text Messaging</DescriptorName></MeshHeading>
        <MeshHeading><DescriptorName>Smoking Cessation</DescriptorName></MeshHeading>
      </MeshHeadingList>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">12345678</ArticleId>
        <ArticleId IdType="doi">10.1000/ntr.2021.001</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

func TestParsePubmedXML(t *testing.T) {
	papers := ParsePubmedXML(sampleArticle)
	if len(papers) != 1 {
		t.Fatalf("expected 1 paper, got %d", len(papers))
	}
	p := papers[0]

	if p.PMID != "12345678" {
		t.Fatalf("pmid = %q", p.PMID)
	}
	if p.Title != "Text messaging for smoking cessation" {
		t.Fatalf("title = %q", p.Title)
	}
	want := "BACKGROUND: Quit rates remain low. METHODS: A randomized trial of SMS support."
	if p.Abstract != want {
		t.Fatalf("abstract = %q", p.Abstract)
	}
	if p.Year != 2021 {
		t.Fatalf("year = %d", p.Year)
	}
	if p.Journal != "Nicotine and Tobacco Research" {
		t.Fatalf("journal = %q", p.Journal)
	}
	if !reflect.DeepEqual(p.Authors, []string{"Rivera Ana", "Chen L"}) {
		t.Fatalf("authors = %v", p.Authors)
	}
	if p.DOI != "10.1000/ntr.2021.001" {
		t.Fatalf("doi = %q", p.DOI)
	}
	// The mappable publication type joins the mesh terms; Journal Article
	// does not.
	if !reflect.DeepEqual(p.MeshTerms, []string{"Adult", "Text Messaging", "Smoking Cessation", "Randomized Controlled Trial"}) {
		t.Fatalf("mesh terms = %v", p.MeshTerms)
	}
	if !reflect.DeepEqual(p.PublicationTypes, []string{"Randomized Controlled Trial", "Journal Article"}) {
		t.Fatalf("publication types = %v", p.PublicationTypes)
	}
	if !reflect.DeepEqual(p.PICO.Population, []string{"adults"}) {
		t.Fatalf("pico population = %v", p.PICO.Population)
	}
	if !reflect.DeepEqual(p.PICO.Intervention, []string{"mobile_sms"}) {
		t.Fatalf("pico intervention = %v", p.PICO.Intervention)
	}
	if !reflect.DeepEqual(p.PICO.StudyType, []string{"rct"}) {
		t.Fatalf("pico study type = %v", p.PICO.StudyType)
	}
	if p.Source != SourcePubmed {
		t.Fatalf("source = %q", p.Source)
	}
}

func TestParsePubmedXMLConcatenatedDocuments(t *testing.T) {
	second := strings.Replace(sampleArticle, "12345678", "99999999", 2)
	second = strings.Replace(second, "Text messaging for <i>smoking</i> cessation", "Another trial", 1)
	papers := ParsePubmedXML(sampleArticle + "\n" + second)
	if len(papers) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(papers))
	}
	if papers[1].PMID != "99999999" {
		t.Fatalf("second pmid = %q", papers[1].PMID)
	}
}

func TestParsePubmedXMLMedlineDateFallback(t *testing.T) {
	doc := strings.Replace(sampleArticle, "<PubDate><Year>2021</Year></PubDate>",
		"<PubDate><MedlineDate>2019 Jan-Feb</MedlineDate></PubDate>", 1)
	papers := ParsePubmedXML(doc)
	if len(papers) != 1 || papers[0].Year != 2019 {
		t.Fatalf("year = %d", papers[0].Year)
	}
}

func TestParsePubmedXMLUnparseableReturnsNothing(t *testing.T) {
	if papers := ParsePubmedXML("   not xml at all"); len(papers) != 0 {
		t.Fatalf("expected no papers, got %d", len(papers))
	}
}

func TestDeduplicate(t *testing.T) {
	papers := []Paper{
		{PMID: "1", Title: "Alpha"},
		{PMID: "1", Title: "Alpha variant"},
		{PMID: "2", Title: "alpha"},
		{Title: "Beta"},
		{Title: " BETA "},
		{PMID: "3", Title: "Gamma"},
	}
	got := Deduplicate(papers)
	if len(got) != 3 {
		t.Fatalf("expected 3 unique papers, got %d: %v", len(got), got)
	}
	if got[0].PMID != "1" || got[1].Title != "Beta" || got[2].PMID != "3" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	papers := []Paper{{PMID: "1", Title: "A"}, {PMID: "2", Title: "B"}}
	once := Deduplicate(papers)
	twice := Deduplicate(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("dedupe not idempotent: %v vs %v", once, twice)
	}
}
