package story

import "time"

// ProjectStatus enumerates the lifecycle states of a project.
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
)

// Viewpoint enumerates narrative viewpoints.
type Viewpoint string

const (
	ViewpointFirst        Viewpoint = "first"
	ViewpointThirdLimited Viewpoint = "third_limited"
	ViewpointThirdOmni    Viewpoint = "third_omniscient"
)

// Tense enumerates narrative tenses.
type Tense string

const (
	TensePast    Tense = "past"
	TensePresent Tense = "present"
)

// LinkType enumerates the closed set of chain-link edge types.
type LinkType string

const (
	LinkSetbackReaction LinkType = "setback_reaction"
	LinkDecisionGoal    LinkType = "decision_goal"
	LinkVictoryGoal     LinkType = "victory_goal"
	LinkMixedReaction   LinkType = "mixed_reaction"
	LinkMixedGoal       LinkType = "mixed_goal"
	LinkBridge          LinkType = "bridge"
	LinkChapterBreak    LinkType = "chapter_break"
)

// Project is the root container; every other entity hangs off a project by
// foreign reference, and deleting a project cascades to all of them.
type Project struct {
	ID              string        `gorm:"column:id;primaryKey;size:36"`
	Title           string        `gorm:"column:title;size:255;not null"`
	TargetWordCount int           `gorm:"column:target_word_count;not null;default:0"`
	Status          ProjectStatus `gorm:"column:status;size:16;not null;default:draft"`
	CreatedAt       time.Time     `gorm:"column:created_at"`
	UpdatedAt       time.Time     `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Project) TableName() string { return "projects" }

// SceneCard is a structured narrative unit. The (project_id, id) composite
// key makes scene identifiers unique within their project.
type SceneCard struct {
	ProjectID      string     `gorm:"column:project_id;primaryKey;size:36;not null"`
	ID             string     `gorm:"column:id;primaryKey;size:64;not null"`
	Kind           SceneKind  `gorm:"column:kind;size:16;not null;index"`
	POV            string     `gorm:"column:pov;size:128;not null"`
	Viewpoint      Viewpoint  `gorm:"column:viewpoint;size:24;not null"`
	Tense          Tense      `gorm:"column:tense;size:12;not null"`
	Crucible       string     `gorm:"column:crucible;type:text;not null"`
	Place          string     `gorm:"column:place;size:255"`
	Time           string     `gorm:"column:time;size:255"`
	ExpositionTags StringList `gorm:"column:exposition_tags;type:text"`
	ChainLinkNote  string     `gorm:"column:chain_link_note;type:text"`
	Plan           PlanColumn `gorm:"column:plan;type:text;not null"`

	// Denormalized cache maintained by the version manager.
	WordCount      int `gorm:"column:word_count;not null;default:0"`
	ReadingMinutes int `gorm:"column:reading_minutes;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (SceneCard) TableName() string { return "scene_cards" }

// ProseVersion is one immutable, append-only snapshot of rendered text for
// a scene card. At most one row per scene has is_current = true.
type ProseVersion struct {
	ID          string `gorm:"column:id;primaryKey;size:36"`
	ProjectID   string `gorm:"column:project_id;size:36;not null;index:idx_prose_scene,priority:1"`
	SceneID     string `gorm:"column:scene_id;size:64;not null;index:idx_prose_scene,priority:2"`
	Body        string `gorm:"column:body;type:text;not null"`
	ContentType string `gorm:"column:content_type;size:32;not null;default:prose"`
	ContentHash string `gorm:"column:content_hash;size:64;not null"`
	Version     string `gorm:"column:version;size:32;not null"`
	Note        string `gorm:"column:note;type:text"`
	IsCurrent   bool   `gorm:"column:is_current;not null;default:false;index"`

	WordCount       int        `gorm:"column:word_count;not null;default:0"`
	CharCount       int        `gorm:"column:char_count;not null;default:0"`
	ReadingMinutes  int        `gorm:"column:reading_minutes;not null;default:0"`
	SentenceCount   int        `gorm:"column:sentence_count;not null;default:0"`
	AvgSentenceLen  float64    `gorm:"column:avg_sentence_len;not null;default:0"`
	Readability     float64    `gorm:"column:readability;not null;default:0"`
	Sentiment       float64    `gorm:"column:sentiment;not null;default:0"`
	DialogueRatio   float64    `gorm:"column:dialogue_ratio;not null;default:0"`
	Keywords        StringList `gorm:"column:keywords;type:text"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (ProseVersion) TableName() string { return "prose_versions" }

// ChainLink is a directed, typed edge from one scene card to an optional
// target. Source/target kind and POV are denormalized snapshots taken at
// creation time; they are deliberately not re-derived when the referenced
// scene changes or disappears (see CheckConsistency).
type ChainLink struct {
	ProjectID       string     `gorm:"column:project_id;primaryKey;size:36;not null"`
	ID              string     `gorm:"column:id;primaryKey;size:64;not null"`
	LinkType        LinkType   `gorm:"column:link_type;size:24;not null;index"`
	TransitionStyle string     `gorm:"column:transition_style;size:64"`
	SourceSceneID   string     `gorm:"column:source_scene_id;size:64;not null"`
	TargetSceneID   string     `gorm:"column:target_scene_id;size:64"`
	SourceKind      SceneKind  `gorm:"column:source_kind;size:16;not null"`
	SourcePOV       string     `gorm:"column:source_pov;size:128"`
	TargetKind      SceneKind  `gorm:"column:target_kind;size:16"`
	TargetPOV       string     `gorm:"column:target_pov;size:128"`
	Trigger         string     `gorm:"column:trigger;type:text"`
	TargetSeed      string     `gorm:"column:target_seed;type:text"`
	BridgingText    string     `gorm:"column:bridging_text;type:text"`
	Valid           bool       `gorm:"column:valid;not null;default:true"`
	ValidationErrs  StringList `gorm:"column:validation_errors;type:text"`
	Score           float64    `gorm:"column:score;not null;default:0"`
	StoryContext    JSONMap    `gorm:"column:story_context;type:text"`
	StateChanges    JSONMap    `gorm:"column:state_changes;type:text"`
	CreatedAt       time.Time  `gorm:"column:created_at;index"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (ChainLink) TableName() string { return "chain_links" }

// Character belongs to a project and is referenced by POV labels on scenes.
type Character struct {
	ProjectID string    `gorm:"column:project_id;primaryKey;size:36;not null"`
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	Name      string    `gorm:"column:name;size:255;not null"`
	Role      string    `gorm:"column:role;size:64"`
	POVNotes  string    `gorm:"column:pov_notes;type:text"`
	Traits    JSONMap   `gorm:"column:traits;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Character) TableName() string { return "characters" }

// Sequence is an ordered grouping of scene cards. Member links and derived
// metrics are recomputed on demand, never cached authoritatively.
type Sequence struct {
	ProjectID  string     `gorm:"column:project_id;primaryKey;size:36;not null"`
	ID         string     `gorm:"column:id;primaryKey;size:64;not null"`
	Title      string     `gorm:"column:title;size:255;not null"`
	SceneOrder StringList `gorm:"column:scene_order;type:text;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Sequence) TableName() string { return "sequences" }

// SequenceMetrics are derived from the current prose versions of a
// sequence's member scenes.
type SequenceMetrics struct {
	SceneCount     int
	TotalWordCount int
	ReadingMinutes int
}

// ValidationLog records one collaborator validation run. The detail payload
// is opaque to this subsystem.
type ValidationLog struct {
	ID        string    `gorm:"column:id;primaryKey;size:36"`
	ProjectID string    `gorm:"column:project_id;size:36;not null;index"`
	SceneID   string    `gorm:"column:scene_id;size:64"`
	Validator string    `gorm:"column:validator;size:128;not null"`
	Passed    bool      `gorm:"column:passed;not null"`
	Score     float64   `gorm:"column:score;not null;default:0"`
	Detail    JSONMap   `gorm:"column:detail;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName provides the explicit table binding for GORM.
func (ValidationLog) TableName() string { return "validation_logs" }
