package prompts

const newToolTemplate = `Based on the following high-level description of a desired tool, your task is to generate a single Python function and associated metadata.

Tool Description: "{{.Description}}"

Instructions:
1.  **Metadata Line (First Line of Response):** At the very beginning of your response, include a line starting with '# METADATA: ' followed by a JSON string. This JSON string *MUST* contain:
    - 'suggested_function_name': A Pythonic function name (snake_case) for the generated function.
    - 'suggested_tool_name': A short, user-friendly name for tool registration (camelCase or snake_case is acceptable).
    - 'suggested_description': A concise description (max 1-2 sentences) of what the tool does, suitable for a tool registry.
    Example of the first line of the response:
    # METADATA: {"suggested_function_name": "calculate_circle_area", "suggested_tool_name": "calculateCircleArea", "suggested_description": "Calculates the area of a circle given its radius."}

2.  **Python Function Code (Following Metadata):** After the metadata line, provide the raw Python code for the function.
    - The function should be self-contained if possible, or use common Python standard libraries.
    - Include type hints for all parameters and the return value.
    - Include a comprehensive docstring explaining what the function does, its arguments (name, type, description), and what it returns.
    - Implement basic error handling using try-except blocks where appropriate.

Constraints:
- Respond ONLY with the metadata line followed by the raw Python code.
- Do not include any other explanations, comments outside the function's docstring (except the metadata line), or markdown formatting like ` + "```python" + `.

Response Structure:
# METADATA: {"suggested_function_name": "...", "suggested_tool_name": "...", "suggested_description": "..."}
def generated_function_name(param1: type, ...) -> return_type:
    """Docstring for the function."""
    # Function implementation
    ...

Now, generate the metadata and Python function based on the Tool Description provided above.
`

const codeFixTemplate = `The following Python function (from module '{{.ModulePath}}', function name '{{.FunctionName}}') has an issue.
Original Problem Description / Goal for Fix:
{{.Problem}}

Original Function Code:
` + "```python" + `
{{.OriginalCode}}
` + "```" + `

Your task is to provide a corrected version of this Python function.
- Only output the complete, raw Python code for the corrected function.
- Do NOT include any explanations, markdown formatting, or any text other than the function code itself.
- Ensure the function signature (name, parameters, type hints) remains the same unless the problem description explicitly requires changing it.
- If you cannot determine a fix or the original code is not a single function, return only the text: "{{.Sentinel}}"

Corrected Python function code:
`

const unitTestScaffoldTemplate = `You are an expert Python testing assistant.
Given the following Python code, generate a basic unit test scaffold using the 'unittest' framework.

The scaffold should include:
1.  Necessary imports (e.g., ` + "`unittest`" + `, and the module containing the code to be tested). Assume the code to be tested is available in a module that can be imported as '{{.ModuleNameHint}}'.
2.  A test class that inherits from ` + "`unittest.TestCase`" + `.
3.  A ` + "`setUp`" + ` method if it seems beneficial (e.g., if the input code is a class that needs instantiation).
4.  Placeholder test methods (e.g., ` + "`test_function_name_basic_case`, `test_function_name_edge_case`" + `) for each public function or method in the provided code.
    - Each placeholder test method should include ` + "`self.fail(\"Test not yet implemented\")`" + ` or a simple ` + "`pass`" + `.
5.  An ` + "`if __name__ == '__main__': unittest.main()`" + ` block.

Do NOT generate actual test logic or assertions within the placeholder methods. Only generate the structural scaffold.

Python code to generate a unit test scaffold for:
` + "```python" + `
{{.Code}}
` + "```" + `

Unit test scaffold:
`

const hierarchicalOutlineTemplate = `You are a senior software architect. Based on the following high-level requirement, generate a structural outline of the Python code needed.
The outline must be a single JSON object with these keys:
- "module_name": the Pythonic module name.
- "module_docstring": a short description of the module.
- "imports": a list of module names to import, e.g. ["os", "json"].
- "components": a non-empty list of components.
- "main_execution_block": optional code for the ` + "`if __name__ == \"__main__\":`" + ` block.

Each component has:
- "type": "function" or "class"
- "name": the Pythonic name.
- "description": a brief explanation of its purpose.
- (functions and methods) "signature": the parameter list and return annotation, e.g. "(self, arg1: str, arg2: int) -> bool"
- (functions and methods) "body_placeholder": a specific, actionable instruction for the AI that will implement the body, e.g. "# Calculate factorial using recursion, handle n=0."
- (classes) "attributes": a list of {"name", "type", "description"} objects.
- (classes) "methods": a list of function components.

High-Level Requirement:
{{.Requirement}}

JSON Outline:
`

const componentDetailTemplate = `You are an expert Python programmer. Your task is to implement a specific Python function or method based on its definition and the overall context of its containing module or class.

Overall Module/Class Context:
<context_summary>
{{.ContextSummary}}
</context_summary>

Component to Implement:
- Type: {{.Kind}}
- Name: {{.Name}}
- Signature: ` + "`{{.Signature}}`" + `
- Description/Purpose: {{.Description}}
- Body Placeholder (Initial thought from outline): {{.BodyPlaceholder}}

Required Module-Level Imports (available for use, do not redeclare unless shadowing):
{{.Imports}}

Instructions for Implementation:
1.  Implement *only* the Python code for the function/method ` + "`{{.Name}}`" + `.
2.  Adhere strictly to the provided signature: ` + "`{{.Signature}}`" + `.
3.  Ensure your code fulfills the component's described purpose and expands on the placeholder.
4.  Use the provided module-level imports if needed. Local imports within the function are acceptable if scoped appropriately.
5.  If the component is a class method, you can assume it has access to ` + "`self`" + ` and any attributes listed in the context.
6.  Focus on clear, correct, and efficient Python code. Include comments for complex logic.
7.  Always generate the full component code including the signature, i.e. ` + "`def {{.Name}}(...):`" + ` followed by the indented body, starting at column zero.
8.  If the task is impossible or the description is too ambiguous to implement, return only the comment: ` + "`{{.Sentinel}} Ambiguous instruction or impossible task.`" + `

Python code for ` + "`{{.Name}}`" + `:
`

const granularRefactorTemplate = `You are an expert Python refactoring assistant.
You will be given the full source code of a Python function/method, a specific section within that code to target, and a refactoring instruction.
Your task is to apply the refactoring instruction *only* to the specified section and then return the *entire modified function/method code*.

Module Path: ` + "`{{.ModulePath}}`" + `
Function Name: ` + "`{{.FunctionName}}`" + `

Original Function Code:
` + "```python" + `
{{.OriginalCode}}
` + "```" + `

Section to Modify:
` + "```" + `
{{.Section}}
` + "```" + `

Refactoring Instruction:
{{.Instruction}}

Constraints:
- Modify *only* the specified section if possible. If the change necessitates minor adjustments elsewhere in the function, that's acceptable.
- Return the complete Python code for the *entire function/method*, including the signature, docstring, and the applied modification.
- Do NOT include any explanations, markdown formatting, or any text other than the complete, modified function/method code itself.
- If the instruction is unclear, impossible, or the section cannot be reasonably identified/modified as instructed, return only the text: "{{.Sentinel}}"

Modified full function/method code:
`
