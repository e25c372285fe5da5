// Package pico maps PubMed MeSH descriptors and publication types onto
// structured PICO dimensions (population, intervention, setting, outcome,
// study type). Pure table lookups, no LLM involved.
package pico

import (
	"sort"
	"strings"
)

type Dimension string

const (
	DimPopulation   Dimension = "population"
	DimIntervention Dimension = "intervention"
	DimSetting      Dimension = "setting"
	DimOutcome      Dimension = "outcome"
	DimStudyType    Dimension = "study_type"
)

// Dimensions lists every PICO dimension in canonical order.
var Dimensions = []Dimension{DimPopulation, DimIntervention, DimSetting, DimOutcome, DimStudyType}

type entry struct {
	dim Dimension
	cat string
}

// termTable maps MeSH descriptor names (and a handful of PublicationType
// values) to their PICO dimension and category slug. Lookup is exact match on
// the descriptor as PubMed returns it.
var termTable = map[string]entry{
	// Populations: age groups
	"Adult":            {DimPopulation, "adults"},
	"Young Adult":      {DimPopulation, "young_adults"},
	"Middle Aged":      {DimPopulation, "middle_aged"},
	"Aged":             {DimPopulation, "elderly"},
	"Aged, 80 and over": {DimPopulation, "elderly"},
	"Adolescent":       {DimPopulation, "adolescents"},
	"Child":            {DimPopulation, "children"},
	"Infant":           {DimPopulation, "infants"},

	// Populations: pregnancy and reproductive
	"Pregnant Women":    {DimPopulation, "pregnant"},
	"Pregnancy":         {DimPopulation, "pregnant"},
	"Postpartum Period": {DimPopulation, "postpartum"},

	// Populations: socioeconomic
	"Poverty":                {DimPopulation, "low_income"},
	"Socioeconomic Factors":  {DimPopulation, "low_income"},
	"Medically Uninsured":    {DimPopulation, "uninsured"},
	"Homeless Persons":       {DimPopulation, "homeless"},
	"Vulnerable Populations": {DimPopulation, "vulnerable"},

	// Populations: race and ethnicity
	"Minority Groups":                  {DimPopulation, "minorities"},
	"African Americans":                {DimPopulation, "african_american"},
	"Hispanic Americans":               {DimPopulation, "hispanic"},
	"Asian Americans":                  {DimPopulation, "asian"},
	"American Indian or Alaska Native": {DimPopulation, "native_american"},

	// Populations: health conditions
	"Mental Disorders":                        {DimPopulation, "psychiatric_comorbidity"},
	"Substance-Related Disorders":             {DimPopulation, "substance_use_disorder"},
	"Alcohol-Related Disorders":               {DimPopulation, "alcohol_use_disorder"},
	"Depression":                              {DimPopulation, "depression"},
	"Anxiety Disorders":                       {DimPopulation, "anxiety"},
	"Schizophrenia":                           {DimPopulation, "schizophrenia"},
	"Diabetes Mellitus":                       {DimPopulation, "diabetes"},
	"Cardiovascular Diseases":                 {DimPopulation, "cardiovascular"},
	"Pulmonary Disease, Chronic Obstructive":  {DimPopulation, "copd"},
	"HIV Infections":                          {DimPopulation, "hiv"},

	// Populations: occupational
	"Veterans":           {DimPopulation, "veterans"},
	"Health Personnel":   {DimPopulation, "healthcare_workers"},
	"Military Personnel": {DimPopulation, "military"},

	// Populations: sex
	"Male":   {DimPopulation, "male"},
	"Female": {DimPopulation, "female"},

	// Interventions: pharmacological
	"Nicotine Replacement Therapy":  {DimIntervention, "nrt"},
	"Tobacco Use Cessation Devices": {DimIntervention, "nrt"},
	"Nicotine":                      {DimIntervention, "nrt"},
	"Nicotinic Agonists":            {DimIntervention, "nrt"},
	"Varenicline":                   {DimIntervention, "varenicline"},
	"Bupropion":                     {DimIntervention, "bupropion"},
	"Cytisine":                      {DimIntervention, "cytisine"},
	"Antidepressive Agents":         {DimIntervention, "antidepressants"},
	"Antipsychotic Agents":          {DimIntervention, "antipsychotics"},
	"Naltrexone":                    {DimIntervention, "naltrexone"},
	"Methadone":                     {DimIntervention, "methadone"},

	// Interventions: behavioral and psychotherapy
	"Counseling":                   {DimIntervention, "counseling"},
	"Cognitive Behavioral Therapy": {DimIntervention, "cbt"},
	"Motivational Interviewing":    {DimIntervention, "motivational_interviewing"},
	"Behavior Therapy":             {DimIntervention, "behavior_therapy"},
	"Psychotherapy":                {DimIntervention, "psychotherapy"},
	"Psychotherapy, Group":         {DimIntervention, "group_therapy"},
	"Family Therapy":               {DimIntervention, "family_therapy"},
	"Crisis Intervention":          {DimIntervention, "crisis_intervention"},
	"Mindfulness":                  {DimIntervention, "mindfulness"},

	// Interventions: education and prevention
	"Health Education":           {DimIntervention, "health_education"},
	"Patient Education as Topic": {DimIntervention, "patient_education"},
	"Health Promotion":           {DimIntervention, "health_promotion"},
	"Preventive Health Services": {DimIntervention, "prevention"},
	"Primary Prevention":         {DimIntervention, "primary_prevention"},
	"Secondary Prevention":       {DimIntervention, "secondary_prevention"},

	// Interventions: technology-based
	"Hotlines":            {DimIntervention, "hotlines"},
	"Telephone":           {DimIntervention, "telephone_intervention"},
	"Text Messaging":      {DimIntervention, "mobile_sms"},
	"Telemedicine":        {DimIntervention, "telehealth"},
	"Mobile Applications": {DimIntervention, "mobile_app"},
	"Internet":            {DimIntervention, "web_based"},
	"Smartphone":          {DimIntervention, "mobile_app"},
	"Video Games":         {DimIntervention, "gamification"},

	// Interventions: incentives and social support
	"Motivation":         {DimIntervention, "incentives"},
	"Reward":             {DimIntervention, "incentives"},
	"Social Support":     {DimIntervention, "social_support"},
	"Peer Group":         {DimIntervention, "peer_support"},
	"Self-Help Groups":   {DimIntervention, "self_help_groups"},
	"Community Networks": {DimIntervention, "community_support"},

	// Interventions: screening and brief interventions
	"Mass Screening":                  {DimIntervention, "screening"},
	"Early Medical Intervention":      {DimIntervention, "brief_intervention"},
	"Early Intervention, Educational": {DimIntervention, "early_intervention"},

	// Interventions: case management and care coordination
	"Case Management":           {DimIntervention, "case_management"},
	"Patient Navigation":        {DimIntervention, "patient_navigation"},
	"Patient Care Team":         {DimIntervention, "care_coordination"},
	"Referral and Consultation": {DimIntervention, "referral"},

	// Interventions: exercise and lifestyle
	"Exercise":         {DimIntervention, "exercise"},
	"Exercise Therapy": {DimIntervention, "exercise_therapy"},
	"Diet Therapy":     {DimIntervention, "diet_intervention"},
	"Life Style":       {DimIntervention, "lifestyle_intervention"},
	"Weight Loss":      {DimIntervention, "weight_management"},

	// Settings
	"Emergency Service, Hospital": {DimSetting, "emergency_department"},
	"Emergency Medical Services":  {DimSetting, "emergency_department"},
	"Hospitals":                   {DimSetting, "inpatient"},
	"Hospitalization":             {DimSetting, "inpatient"},
	"Primary Health Care":         {DimSetting, "primary_care"},
	"Ambulatory Care":             {DimSetting, "outpatient"},
	"Community Health Services":   {DimSetting, "community"},
	"Hospitals, Urban":            {DimSetting, "urban_hospital"},
	"Hospitals, Rural":            {DimSetting, "rural_hospital"},
	"Hospitals, Community":        {DimSetting, "community_hospital"},
	"Academic Medical Centers":    {DimSetting, "academic_medical_center"},

	// Outcomes
	"Smoking Cessation":     {DimOutcome, "cessation"},
	"Tobacco Use Cessation": {DimOutcome, "cessation"},
	"Tobacco Use Disorder":  {DimOutcome, "tobacco_dependence"},
	"Recurrence":            {DimOutcome, "relapse"},
	"Treatment Outcome":     {DimOutcome, "treatment_outcome"},

	// Outcomes: economic
	"Cost-Benefit Analysis": {DimOutcome, "cost_effectiveness"},
	"Health Care Costs":     {DimOutcome, "cost"},
	"Cost of Illness":       {DimOutcome, "cost"},

	// Outcomes: quality measures
	"Quality of Life":      {DimOutcome, "quality_of_life"},
	"Patient Satisfaction": {DimOutcome, "satisfaction"},
	"Patient Compliance":   {DimOutcome, "adherence"},
	"Medication Adherence": {DimOutcome, "adherence"},

	// Outcomes: engagement
	"Patient Acceptance of Health Care": {DimOutcome, "engagement"},
	"Health Services Accessibility":     {DimOutcome, "access"},

	// Study types (these arrive as PublicationType values, not MeSH)
	"Randomized Controlled Trial": {DimStudyType, "rct"},
	"Controlled Clinical Trial":   {DimStudyType, "controlled_trial"},
	"Clinical Trial":              {DimStudyType, "clinical_trial"},
	"Pragmatic Clinical Trial":    {DimStudyType, "pragmatic_trial"},
	"Observational Study":         {DimStudyType, "observational"},
	"Cohort Studies":              {DimStudyType, "cohort"},
	"Cross-Sectional Studies":     {DimStudyType, "cross_sectional"},
	"Case-Control Studies":        {DimStudyType, "case_control"},
	"Systematic Review":           {DimStudyType, "systematic_review"},
	"Meta-Analysis":               {DimStudyType, "meta_analysis"},
	"Review":                      {DimStudyType, "review"},
	"Qualitative Research":        {DimStudyType, "qualitative"},
	"Pilot Projects":              {DimStudyType, "pilot"},
}

// Mapping holds the matched category slugs per dimension. Slices preserve the
// order of first appearance in the input term list and never repeat a slug.
type Mapping struct {
	Population   []string `json:"population"`
	Intervention []string `json:"intervention"`
	Setting      []string `json:"setting"`
	Outcome      []string `json:"outcome"`
	StudyType    []string `json:"study_type"`
}

// Get returns the category list for a dimension.
func (m Mapping) Get(dim Dimension) []string {
	switch dim {
	case DimPopulation:
		return m.Population
	case DimIntervention:
		return m.Intervention
	case DimSetting:
		return m.Setting
	case DimOutcome:
		return m.Outcome
	case DimStudyType:
		return m.StudyType
	}
	return nil
}

// MapStats reports how many input terms matched the table.
type MapStats struct {
	Terms   int
	Matched int
}

// Lookup maps a single term. ok is false for terms outside the table.
func Lookup(term string) (Dimension, string, bool) {
	e, ok := termTable[term]
	return e.dim, e.cat, ok
}

// Known reports whether a term exists in the mapping table.
func Known(term string) bool {
	_, ok := termTable[term]
	return ok
}

// MapTerms maps a term list onto PICO dimensions. Unknown terms are dropped.
func MapTerms(terms []string) Mapping {
	m, _ := MapTermsWithStats(terms)
	return m
}

// MapTermsWithStats is MapTerms plus a matched/total count so callers can
// observe the drop rate.
func MapTermsWithStats(terms []string) (Mapping, MapStats) {
	var m Mapping
	stats := MapStats{Terms: len(terms)}
	for _, term := range terms {
		e, ok := termTable[term]
		if !ok {
			continue
		}
		stats.Matched++
		switch e.dim {
		case DimPopulation:
			m.Population = appendUnique(m.Population, e.cat)
		case DimIntervention:
			m.Intervention = appendUnique(m.Intervention, e.cat)
		case DimSetting:
			m.Setting = appendUnique(m.Setting, e.cat)
		case DimOutcome:
			m.Outcome = appendUnique(m.Outcome, e.cat)
		case DimStudyType:
			m.StudyType = appendUnique(m.StudyType, e.cat)
		}
	}
	return m, stats
}

// Categories returns the sorted unique category slugs for a dimension.
func Categories(dim Dimension) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, e := range termTable {
		if e.dim != dim {
			continue
		}
		if _, ok := seen[e.cat]; ok {
			continue
		}
		seen[e.cat] = struct{}{}
		out = append(out, e.cat)
	}
	sort.Strings(out)
	return out
}

// DisplayName converts a category slug to a human-readable label
// ("mobile_sms" -> "Mobile Sms").
func DisplayName(category string) string {
	words := strings.Split(category, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func appendUnique(items []string, v string) []string {
	for _, item := range items {
		if item == v {
			return items
		}
	}
	return append(items, v)
}
