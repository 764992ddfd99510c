package completion

import (
	"strings"

	"github.com/complyon/backend/internal/model"
	"github.com/complyon/backend/internal/service/docgate"
	"github.com/complyon/backend/internal/service/statemachine"
)

// Verdict 清单级的可提交性结论
type Verdict struct {
	IsComplete           bool                 `json:"is_complete"`
	TotalQuestions       int                  `json:"total_questions"`
	CompletedQuestions   int                  `json:"completed_questions"`
	QuestionsNeedingDocs int                  `json:"questions_needing_docs"`
	QuestionsWithDocs    int                  `json:"questions_with_docs"`
	IncompleteQuestions  []IncompleteQuestion `json:"incomplete_questions"`
}

// IncompleteQuestion 未完成问题及原因，用于结构化的拒绝信息
type IncompleteQuestion struct {
	QuestionID      uint   `json:"question_id"`
	Text            string `json:"text"`
	MissingAnswer   bool   `json:"missing_answer"`
	MissingDocument bool   `json:"missing_document"`
}

// Evaluate 聚合问题状态与证据文件，计算清单是否可提交
// 空清单永远不算完成：抽取静默产出零问题的清单不允许误提交
func Evaluate(questions []model.Question, docs []model.SupportingDocument) *Verdict {
	verdict := &Verdict{
		TotalQuestions: len(questions),
	}

	for _, q := range questions {
		answered := statemachine.IsAnswered(statemachine.QuestionStatus(q.Status)) &&
			strings.TrimSpace(q.Answer) != ""
		satisfied := docgate.IsSatisfied(&q, docs)

		if answered {
			verdict.CompletedQuestions++
		}
		if q.RequiresDocument {
			verdict.QuestionsNeedingDocs++
			if satisfied {
				verdict.QuestionsWithDocs++
			}
		}

		if !answered || !satisfied {
			verdict.IncompleteQuestions = append(verdict.IncompleteQuestions, IncompleteQuestion{
				QuestionID:      q.ID,
				Text:            q.Text,
				MissingAnswer:   !answered,
				MissingDocument: !satisfied,
			})
		}
	}

	verdict.IsComplete = len(verdict.IncompleteQuestions) == 0 && verdict.TotalQuestions > 0
	return verdict
}

// MissingCounts 拆出未答题数与缺文档数，用于 IncompleteChecklistFailure
func (v *Verdict) MissingCounts() (unanswered, missingDocs int) {
	for _, iq := range v.IncompleteQuestions {
		if iq.MissingAnswer {
			unanswered++
		}
		if iq.MissingDocument {
			missingDocs++
		}
	}
	return unanswered, missingDocs
}
