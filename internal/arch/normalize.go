package arch

import (
	"strings"
)

// serviceAliases maps the names the analysis capability tends to emit onto
// the canonical vocabulary the rest of the pipeline keys on.
var serviceAliases = map[string]string{
	"web app":         "app service",
	"webapp":          "app service",
	"web application": "app service",
	"website":         "app service",

	"sql db":     "sql database",
	"database":   "sql database",
	"sql server": "sql database",
	"sql":        "sql database",

	"storage":      "storage account",
	"blob storage": "storage account",
	"blob":         "storage account",
	"data storage": "storage account",

	"vnet":    "virtual network",
	"network": "virtual network",
	"vpc":     "virtual network",

	"app gateway": "application gateway",
	"gateway":     "application gateway",
	"waf":         "application gateway",

	"lb":              "load balancer",
	"balancer":        "load balancer",
	"traffic manager": "load balancer",

	"aks":               "kubernetes service",
	"kubernetes":        "kubernetes service",
	"k8s":               "kubernetes service",
	"container service": "kubernetes service",

	"acr":      "container registry",
	"registry": "container registry",

	"vault":              "key vault",
	"keyvault":           "key vault",
	"secrets management": "key vault",

	"cosmosdb":    "cosmos db",
	"cosmos":      "cosmos db",
	"document db": "cosmos db",
	"nosql":       "cosmos db",

	"redis": "redis cache",
	"cache": "redis cache",

	"function app": "functions",
	"function":     "functions",
	"serverless":   "functions",

	"logic app": "logic apps",
	"workflow":  "logic apps",

	"servicebus":    "service bus",
	"messaging":     "service bus",
	"message queue": "service bus",

	"event hub": "event hubs",
	"eventhub":  "event hubs",

	"apim":        "api management",
	"api gateway": "api management",
	"api":         "api management",

	"content delivery network": "cdn",
	"content delivery":         "cdn",

	"monitoring":           "monitor",
	"application insights": "monitor",
	"app insights":         "monitor",
	"metrics":              "monitor",

	"aad":      "active directory",
	"ad":       "active directory",
	"identity": "active directory",

	"nsg":              "network security group",
	"security group":   "network security group",
	"network security": "network security group",

	"fw": "firewall",

	"vpn": "vpn gateway",

	"vm":               "virtual machine",
	"compute instance": "virtual machine",
	"server":           "virtual machine",

	"postgres": "postgresql",

	"data lake": "data lake",
	"adls":      "data lake",

	"log analytics": "log analytics",
	"logs":          "log analytics",
}

// serviceCategories assigns each canonical service type to a coarse category
// used by policy matching and report grouping.
var serviceCategories = map[string]string{
	"virtual machine":    "compute",
	"app service":        "compute",
	"kubernetes service": "compute",
	"functions":          "compute",
	"logic apps":         "compute",

	"storage account": "storage",
	"data lake":       "storage",

	"sql database": "database",
	"cosmos db":    "database",
	"postgresql":   "database",
	"mysql":        "database",
	"redis cache":  "database",

	"virtual network":        "network",
	"application gateway":    "network",
	"load balancer":          "network",
	"firewall":               "network",
	"vpn gateway":            "network",
	"cdn":                    "network",
	"api management":         "network",
	"network security group": "network",

	"key vault":        "security",
	"active directory": "security",
	"security center":  "security",
	"sentinel":         "security",

	"monitor":       "monitoring",
	"log analytics": "monitoring",

	"service bus": "integration",
	"event hubs":  "integration",

	"container registry": "devops",
}

const defaultConfidence = 0.7

// CanonicalServiceType resolves an emitted service type to its canonical
// name. Unknown types pass through lowercased and trimmed.
func CanonicalServiceType(serviceType string) string {
	normalized := strings.ToLower(strings.TrimSpace(serviceType))
	if canonical, ok := serviceAliases[normalized]; ok {
		return canonical
	}
	return normalized
}

// ServiceCategory returns the coarse category for a canonical service type,
// or "other" when the type is not in the vocabulary.
func ServiceCategory(serviceType string) string {
	if category, ok := serviceCategories[CanonicalServiceType(serviceType)]; ok {
		return category
	}
	return "other"
}

// Normalize post-processes a raw analysis result: it resolves service-type
// aliases, fills categories and default confidence, collapses duplicate
// components that share a name and location (keeping the higher-confidence
// one), prunes relationships that reference unknown components, and records
// the accuracy score. The receiver is not mutated.
func Normalize(a Architecture) Architecture {
	out := a.Clone()

	type dupKey struct {
		name     string
		location string
	}
	seen := make(map[dupKey]int, len(out.Components))
	merged := make([]Component, 0, len(out.Components))
	for _, comp := range out.Components {
		comp.ServiceType = CanonicalServiceType(comp.ServiceType)
		comp.Name = strings.TrimSpace(comp.Name)
		if comp.Category == "" {
			comp.Category = ServiceCategory(comp.ServiceType)
		}
		if comp.Confidence <= 0 {
			comp.Confidence = defaultConfidence
		}
		key := dupKey{name: strings.ToLower(comp.Name), location: strings.ToLower(strings.TrimSpace(comp.Location))}
		if idx, exists := seen[key]; exists {
			if comp.Confidence > merged[idx].Confidence {
				merged[idx] = comp
			}
			continue
		}
		seen[key] = len(merged)
		merged = append(merged, comp)
	}
	out.Components = merged

	names := make(map[string]struct{}, len(merged))
	for _, comp := range merged {
		names[strings.ToLower(comp.Name)] = struct{}{}
	}
	kept := out.Relationships[:0]
	for _, rel := range out.Relationships {
		_, srcOK := names[strings.ToLower(rel.Source)]
		_, dstOK := names[strings.ToLower(rel.Target)]
		if srcOK && dstOK {
			kept = append(kept, rel)
		}
	}
	out.Relationships = kept

	highConfidence := 0
	for _, comp := range merged {
		if comp.Confidence >= 0.8 {
			highConfidence++
		}
	}
	out.Metadata.TotalComponents = len(merged)
	if len(merged) > 0 {
		out.Metadata.AccuracyScore = float64(highConfidence) / float64(len(merged))
	} else {
		out.Metadata.AccuracyScore = 0
	}
	return out
}
