package core

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"notebooker/models"
)

// expectedSections 机器人工程笔记本应当具备的章节
var expectedSections = []string{
	"system_overview", "hardware_design", "software_architecture",
	"control_systems", "sensors", "actuators", "testing_procedures",
	"results_analysis", "future_improvements", "references",
}

// GapAnalysis 差距分析结果
type GapAnalysis struct {
	IncompleteSections []string `json:"incomplete_sections"`
	MissingSections    []string `json:"missing_sections"`
	UnclearContent     []string `json:"unclear_content"`
	MissingImages      []string `json:"missing_images"`
	TechnicalGaps      []string `json:"technical_gaps"`
}

// ContentAnalysis LLM 内容分析结果
type ContentAnalysis struct {
	Analysis  string    `json:"llm_analysis"`
	ModelName string    `json:"backend_used"`
	Degraded  bool      `json:"degraded"`
	Timestamp time.Time `json:"timestamp"`
}

// NotebookWriter 笔记本写作助手
// 负责提示词组织与结果后处理；所有远程调用都走 Dispatcher
type NotebookWriter struct {
	dispatcher *Dispatcher
	logger     *logrus.Logger
}

// NewNotebookWriter 创建写作助手
func NewNotebookWriter(dispatcher *Dispatcher, logger *logrus.Logger) *NotebookWriter {
	return &NotebookWriter{dispatcher: dispatcher, logger: logger}
}

// AnalyzeGaps 对现有章节做本地启发式差距分析（不经过 LLM）
func (w *NotebookWriter) AnalyzeGaps(sections map[string]string) *GapAnalysis {
	ga := &GapAnalysis{
		IncompleteSections: []string{},
		MissingSections:    []string{},
		UnclearContent:     []string{},
		MissingImages:      []string{},
		TechnicalGaps:      []string{},
	}

	for _, name := range expectedSections {
		if _, ok := sections[name]; !ok {
			ga.MissingSections = append(ga.MissingSections, name)
		}
	}

	for name, content := range sections {
		if len(strings.TrimSpace(content)) < 100 {
			ga.IncompleteSections = append(ga.IncompleteSections, name)
		}
		if hasTechnicalGaps(content) {
			ga.TechnicalGaps = append(ga.TechnicalGaps, name)
		}
		if isContentUnclear(content) {
			ga.UnclearContent = append(ga.UnclearContent, name)
		}
		if needsImages(content) {
			ga.MissingImages = append(ga.MissingImages, name)
		}
	}

	return ga
}

// hasTechnicalGaps 占位符文本意味着技术细节尚未填完
func hasTechnicalGaps(content string) bool {
	upper := strings.ToUpper(content)
	for _, placeholder := range []string{"TODO", "TBD", "FIXME", "XXX", "..."} {
		if strings.Contains(upper, placeholder) {
			return true
		}
	}
	return false
}

// isContentUnclear 模糊措辞的简单启发式
func isContentUnclear(content string) bool {
	lower := strings.ToLower(content)
	for _, indicator := range []string{
		"unclear", "confusing", "needs clarification", "not sure",
		"maybe", "possibly", "might be", "could be",
	} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// needsImages 提到图示类内容却没有图片占位符时提示补图
func needsImages(content string) bool {
	lower := strings.ToLower(content)
	mentionsDiagram := false
	for _, indicator := range []string{"diagram", "schematic", "flowchart", "architecture", "layout", "wiring"} {
		if strings.Contains(lower, indicator) {
			mentionsDiagram = true
			break
		}
	}
	return mentionsDiagram && !strings.Contains(lower, "[image")
}

// DraftSection 起草新章节
func (w *NotebookWriter) DraftSection(ctx context.Context, sectionName string, in models.DraftRequest) (*GenerateResult, error) {
	inputs, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Create a comprehensive engineering notebook section for robotics titled "%s".

User inputs:
%s

Please create a well-structured section with:
- Clear overview
- Technical details
- Implementation approach
- Testing procedures
- Results and analysis
- Future improvements
- Placeholders for images [image N]
- Appropriate tags and comments

Format the output as markdown with proper headings and structure.`, sectionName, string(inputs))

	result, err := w.dispatcher.Generate(ctx, prompt, 1000)
	if err != nil {
		return nil, err
	}

	// 补充用户给定的标签和备注元数据
	tags := in.Tags
	if tags == "" {
		tags = "robotics, engineering"
	}
	comment := in.Comment
	if comment == "" {
		comment = "Generated with LLM assistance"
	}
	result.Text = fmt.Sprintf("%s\n\n[TAG: %s]\n[COMMENT: %s]", result.Text, tags, comment)

	return result, nil
}

// RewriteSection 重写既有章节内容
func (w *NotebookWriter) RewriteSection(ctx context.Context, content, focus string) (*GenerateResult, error) {
	if focus == "" {
		focus = "clarity and technical rigor"
	}

	prompt := fmt.Sprintf(`Rewrite the following engineering notebook content to improve %s:

Original content:
%s

Please:
1. Improve clarity and readability
2. Enhance technical accuracy
3. Add missing technical details where appropriate
4. Improve structure and organization
5. Maintain the original intent and information
6. Keep any existing tags and comments

Return the improved version in the same format.`, focus, content)

	return w.dispatcher.Generate(ctx, prompt, 1000)
}

// GenerateQuestions 根据差距分析生成针对性的问题列表
func (w *NotebookWriter) GenerateQuestions(ctx context.Context, ga *GapAnalysis) ([]string, bool, error) {
	analysis, err := json.MarshalIndent(ga, "", "  ")
	if err != nil {
		return nil, false, err
	}

	prompt := fmt.Sprintf(`Based on this gap analysis of an engineering notebook for robotics:

%s

Generate 3-5 targeted, specific questions that would help fill the identified gaps.
Focus on:
- Technical details needed
- Missing information
- Areas needing clarification
- Documentation improvements

Return the questions as a numbered list.`, string(analysis))

	result, err := w.dispatcher.Generate(ctx, prompt, 300)
	if err != nil {
		return nil, false, err
	}

	return ParseQuestions(result.Text), result.Degraded, nil
}

var (
	numberedPrefix = regexp.MustCompile(`^\d+\.\s*`)
	bulletPrefix   = regexp.MustCompile(`^[-*]\s*`)
)

// ParseQuestions 从回复文本中抽取编号/列表形式的问题
// 一条都解析不出来时兜一个默认问题，保证调用方总有可展示内容
func ParseQuestions(text string) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := line[0]
		if (first >= '0' && first <= '9') || first == '-' || first == '*' {
			q := numberedPrefix.ReplaceAllString(line, "")
			q = bulletPrefix.ReplaceAllString(q, "")
			if q != "" {
				questions = append(questions, q)
			}
		}
	}
	if len(questions) == 0 {
		return []string{"Please provide more details about the technical implementation."}
	}
	return questions
}

// AnalyzeContent 用 LLM 对内容做深度分析
func (w *NotebookWriter) AnalyzeContent(ctx context.Context, content string) (*ContentAnalysis, error) {
	prompt := fmt.Sprintf(`Analyze this engineering notebook content for robotics:

%s

Provide analysis on:
1. Technical completeness (what's missing?)
2. Clarity and readability
3. Structure and organization
4. Areas needing improvement
5. Suggested additions

Return as a structured analysis.`, content)

	result, err := w.dispatcher.Generate(ctx, prompt, 500)
	if err != nil {
		return nil, err
	}

	return &ContentAnalysis{
		Analysis:  result.Text,
		ModelName: result.ModelName,
		Degraded:  result.Degraded,
		Timestamp: time.Now(),
	}, nil
}
