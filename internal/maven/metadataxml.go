package maven

import (
	"encoding/xml"

	"github.com/lgulliver/lodestone/pkg/types"
)

// metadataTimestampLayout is Maven's maven-metadata.xml lastUpdated/
// timestamp format: a 14-digit UTC timestamp with no separators.
const metadataTimestampLayout = "20060102150405"

// metadataDoc mirrors the subset of the maven-metadata.xml schema this
// proxy can actually populate: group/artifact identity, the derived
// version record, and registered plugins. Fields the proxy has no data
// for (snapshot/snapshotVersions) are intentionally omitted rather than
// emitted empty.
type metadataDoc struct {
	XMLName    xml.Name       `xml:"metadata"`
	GroupID    string         `xml:"groupId"`
	ArtifactID string         `xml:"artifactId"`
	Versioning *versioningDoc `xml:"versioning,omitempty"`
	Plugins    *pluginsDoc    `xml:"plugins,omitempty"`
}

type versioningDoc struct {
	Latest      string   `xml:"latest,omitempty"`
	Release     string   `xml:"release,omitempty"`
	Versions    []string `xml:"versions>version"`
	LastUpdated string   `xml:"lastUpdated"`
}

type pluginsDoc struct {
	Plugin []pluginDoc `xml:"plugin"`
}

type pluginDoc struct {
	Name       string `xml:"name,omitempty"`
	Prefix     string `xml:"prefix,omitempty"`
	ArtifactID string `xml:"artifactId"`
}

// RenderMetadataXML builds the maven-metadata.xml body for a (group,
// artifact) pair. record may be nil (no versions registered yet); plugins
// may be empty. The result always has a valid XML declaration.
func RenderMetadataXML(groupID, artifactID string, record *types.ArtifactMetadataRecord, plugins []types.PluginMetadata) ([]byte, error) {
	doc := metadataDoc{GroupID: groupID, ArtifactID: artifactID}

	if record != nil {
		doc.Versioning = &versioningDoc{
			Latest:      record.Latest,
			Release:     record.Release,
			Versions:    record.Versions,
			LastUpdated: record.LastUpdated.UTC().Format(metadataTimestampLayout),
		}
	}

	if len(plugins) > 0 {
		pd := &pluginsDoc{Plugin: make([]pluginDoc, len(plugins))}
		for i, p := range plugins {
			pd.Plugin[i] = pluginDoc{Name: p.Name, Prefix: p.Prefix, ArtifactID: p.ArtifactID}
		}
		doc.Plugins = pd
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), body...), nil
}
