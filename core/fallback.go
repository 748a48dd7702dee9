package core

import "strings"

// fallbackRule 兜底规则：任意关键词命中即返回对应的预置回复
type fallbackRule struct {
	keywords []string
	response string
}

// fallbackRules 有序规则表，自上而下匹配，第一条命中即生效
var fallbackRules = []fallbackRule{
	{keywords: []string{"draft", "create"}, response: draftSectionTemplate},
	{keywords: []string{"rewrite", "improve"}, response: rewriteContentTemplate},
	{keywords: []string{"question", "ask"}, response: generateQuestionsTemplate},
	{keywords: []string{"analyze", "gap"}, response: gapAnalysisTemplate},
}

// genericFallbackResponse 无规则命中时的默认回复
const genericFallbackResponse = "I understand you need help with your engineering notebook. Please provide more specific instructions."

// FallbackResponse 所有远程模型都失败后的离线兜底回复
// 纯函数，无 I/O 无副作用：相同输入永远得到相同输出
func FallbackResponse(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, rule := range fallbackRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.response
			}
		}
	}
	return genericFallbackResponse
}

const draftSectionTemplate = `# Section Draft

## Overview
This section covers the key aspects of the topic. The implementation follows standard engineering practices and includes proper documentation.

## Technical Details
- **Specifications**: [Add technical specifications]
- **Requirements**: [List requirements]
- **Constraints**: [Identify constraints]

## Implementation
The implementation approach includes:
1. Design phase
2. Development phase
3. Testing phase
4. Integration phase

## Testing
Testing procedures include:
- Unit testing
- Integration testing
- System testing
- Performance testing

## Results
Results show [describe results and analysis]

## Future Improvements
Potential improvements include:
- [Improvement 1]
- [Improvement 2]
- [Improvement 3]

[image 1] - System architecture diagram
[image 2] - Test results visualization

[TAG: robotics, engineering, documentation]
[COMMENT: This is a template draft - please customize with specific details]`

const rewriteContentTemplate = `# Improved Section

## Enhanced Overview
This section has been improved for clarity and technical rigor. The content now follows best practices for engineering documentation.

## Refined Technical Details
The technical specifications have been clarified and expanded to provide comprehensive coverage of the topic.

## Structured Implementation
The implementation section has been reorganized for better readability and includes:
- Clear step-by-step procedures
- Detailed explanations
- Proper formatting

## Comprehensive Testing
Testing procedures have been enhanced with:
- Detailed test cases
- Expected outcomes
- Validation criteria

## Detailed Results
Results analysis has been improved with:
- Quantitative data
- Visual representations
- Statistical analysis

## Strategic Future Improvements
Future improvements are now prioritized and include:
- Short-term goals
- Long-term objectives
- Resource requirements

[TAG: improved, technical, comprehensive]
[COMMENT: Content has been rewritten for better clarity and technical accuracy]`

const generateQuestionsTemplate = `Based on the analysis, here are some targeted questions to help improve your engineering notebook:

1. **Technical Specifications**: Can you provide more detailed technical specifications for the components mentioned?

2. **Implementation Details**: What specific challenges did you encounter during implementation?

3. **Testing Results**: Do you have quantitative data from your testing procedures?

4. **Performance Metrics**: What performance metrics are most important for this system?

5. **Future Development**: What are your priorities for future improvements?

6. **Documentation**: Are there any diagrams or images that would help illustrate the concepts?

Please provide answers to these questions so I can help improve your documentation.`

const gapAnalysisTemplate = `# Gap Analysis Report

## Identified Gaps

### Missing Sections
- [List missing sections that should be included]

### Incomplete Content
- [List sections that need more detail]

### Technical Gaps
- [List areas lacking technical depth]

### Documentation Issues
- [List formatting or clarity issues]

## Recommendations

### Priority 1 (High)
- [Most critical gaps to address]

### Priority 2 (Medium)
- [Important but less critical gaps]

### Priority 3 (Low)
- [Nice-to-have improvements]

## Next Steps
1. Address Priority 1 gaps first
2. Gather additional information for incomplete sections
3. Review and improve technical content
4. Add supporting images and diagrams

This analysis will help guide the improvement of your engineering notebook.`
