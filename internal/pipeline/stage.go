package pipeline

import (
	"fmt"

	"github.com/nao1215/crmpipeline/internal/apperr"
)

// Stage は商談のパイプライン上のステージ。値はワイヤー形式そのもの。
type Stage string

// ステージ一覧。WonとLostが終端ステージ。
const (
	StageProspect    Stage = "PROSPECT"
	StageContactMade Stage = "CONTACT_MADE"
	StageProposal    Stage = "PROPOSAL"
	StageNegotiation Stage = "NEGOTIATION"
	StageWon         Stage = "WON"
	StageLost        Stage = "LOST"
)

// Stages はパイプラインの並び順に並べた全ステージ。
var Stages = []Stage{
	StageProspect,
	StageContactMade,
	StageProposal,
	StageNegotiation,
	StageWon,
	StageLost,
}

// stageLabels は表示用のラベル。全ステージ分そろっていることを起動時に検証する。
var stageLabels = map[Stage]string{
	StageProspect:    "Prospect",
	StageContactMade: "Contact Made",
	StageProposal:    "Proposal",
	StageNegotiation: "Negotiation",
	StageWon:         "Won",
	StageLost:        "Lost",
}

func init() {
	if err := checkLabels(Stages, stageLabels); err != nil {
		panic(err)
	}
}

// checkLabels は全ステージにラベルがあり、余分なラベルがないことを確認する。
func checkLabels(stages []Stage, labels map[Stage]string) error {
	for _, s := range stages {
		if labels[s] == "" {
			return fmt.Errorf("ステージ %q のラベルが定義されていません", s)
		}
	}
	if len(labels) != len(stages) {
		return fmt.Errorf("ステージ数(%d)とラベル数(%d)が一致しません", len(stages), len(labels))
	}
	return nil
}

// Label は表示用のラベルを返す。未知のステージは値をそのまま返す。
func (s Stage) Label() string {
	if label, ok := stageLabels[s]; ok {
		return label
	}
	return string(s)
}

// IsTerminal はWonまたはLostならtrueを返す。
func (s Stage) IsTerminal() bool {
	return s == StageWon || s == StageLost
}

// Valid は定義済みのステージならtrueを返す。
func (s Stage) Valid() bool {
	_, ok := stageLabels[s]
	return ok
}

// ParseStage はワイヤー形式の値をStageに変換する。
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", apperr.InvalidArgument("未知のステージです: %q", v)
	}
	return s, nil
}
