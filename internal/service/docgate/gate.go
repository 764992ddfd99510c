package docgate

import (
	"github.com/complyon/backend/internal/model"
)

// 文档要求门控：判断问题的强制证据要求是否满足
// 纯函数，按需基于当前文档集合计算，不维护可能漂移的缓存
// 上传/删除完成后重新调用即可，没有过期的"已满足"读数

// DocsFor 从文档集合里投影出挂在指定问题上的证据文件
func DocsFor(questionID uint, docs []model.SupportingDocument) []model.SupportingDocument {
	var matched []model.SupportingDocument
	for _, d := range docs {
		if d.QuestionID != nil && *d.QuestionID == questionID {
			matched = append(matched, d)
		}
	}
	return matched
}

// IsSatisfied 问题不要求文档时恒为满足；要求时至少有一份挂接证据
func IsSatisfied(question *model.Question, docs []model.SupportingDocument) bool {
	if !question.RequiresDocument {
		return true
	}
	for _, d := range docs {
		if d.QuestionID != nil && *d.QuestionID == question.ID {
			return true
		}
	}
	return false
}
